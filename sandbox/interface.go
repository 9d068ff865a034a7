package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// Error categories surfaced by backends. Callers branch with errors.Is:
// a timeout is reported distinctly from a missing interpreter, which is
// reported distinctly from an engine fault.
var (
	// ErrTimeout indicates the wall-clock watchdog fired and the
	// process tree was terminated.
	ErrTimeout = errors.New("execution timed out")

	// ErrToolNotFound indicates a required interpreter, compiler, or
	// container engine is absent from the execution environment.
	ErrToolNotFound = errors.New("required tool not found")
)

// Result represents the captured outcome of one execution. Immutable
// once produced.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Success reports whether the submitted program completed with exit
// code zero. A false value is a normal user-code outcome, not an
// engine error.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Backend defines the contract both isolation strategies satisfy. The
// job queue is backend-agnostic; selection is a deployment-time choice.
type Backend interface {
	Execute(ctx context.Context, plan BoundedPlan, stdin string) (Result, error)
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string, stdin string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string, stdin string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // argv is built from registry constants, never submission content
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// cappedBuffer collects process output up to a fixed byte budget.
// Writes never fail; excess bytes are dropped and the truncation flag
// set, so a flooding child cannot exhaust memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if remain := b.max - b.buf.Len(); remain > 0 {
		if len(p) > remain {
			p = p[:remain]
			b.truncated = true
		}
		b.buf.Write(p)
	} else if len(p) > 0 {
		b.truncated = true
	}
	return n, nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return trimPartialRune(b.buf.String())
	}
	return b.buf.String()
}

// capString bounds an already-captured string the same way.
func capString(s string, max int) (string, bool) {
	if len(s) > max {
		return trimPartialRune(s[:max]), true
	}
	return s, false
}

// trimPartialRune drops a trailing incomplete UTF-8 sequence left
// behind when the cap lands mid-rune.
func trimPartialRune(s string) string {
	for i := 0; i < utf8.UTFMax && i < len(s); i++ {
		idx := len(s) - 1 - i
		c := s[idx]
		if !utf8.RuneStart(c) {
			continue
		}
		if c < utf8.RuneSelf {
			return s
		}
		if r, _ := utf8.DecodeRuneInString(s[idx:]); r == utf8.RuneError {
			return s[:idx]
		}
		return s
	}
	return s
}
