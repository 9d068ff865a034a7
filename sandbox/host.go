package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
)

// HostBackend executes plans as direct child processes of the worker,
// with the working directory set to the workspace. Isolation relies on
// the resource limiter: rlimits on the run step plus the wall-clock
// watchdog terminating the whole process group.
type HostBackend struct {
	logger    *zap.Logger
	launcher  Launcher
	maxOutput int
}

// HostBackendOption defines a functional option for HostBackend
type HostBackendOption func(*HostBackend)

// WithLauncher sets the process launcher for HostBackend
func WithLauncher(l Launcher) HostBackendOption {
	return func(h *HostBackend) {
		h.launcher = l
	}
}

// NewHostBackend creates a host-process execution backend
func NewHostBackend(logger *zap.Logger, cfg *config.Config, opts ...HostBackendOption) *HostBackend {
	h := &HostBackend{
		logger:    logger,
		launcher:  NewLauncher(),
		maxOutput: cfg.Sandbox.MaxOutputKB * 1024,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Execute runs the plan's steps in order. The wall clock covers the
// whole plan: a compile step eats into the run step's budget. A
// non-zero compile exit ends the plan with the compiler's output, which
// is a normal user-code outcome.
func (h *HostBackend) Execute(ctx context.Context, plan BoundedPlan, stdin string) (Result, error) {
	start := time.Now()
	deadline := start.Add(plan.Limits.Timeout)

	if len(plan.Compile) > 0 {
		res, err := h.runStep(ctx, plan, plan.Compile, "", Rlimits{}, time.Until(deadline))
		if err != nil {
			return Result{}, err
		}
		if res.ExitCode != 0 {
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	res, err := h.runStep(ctx, plan, plan.Run, stdin, plan.Rlimits, time.Until(deadline))
	if err != nil {
		return Result{}, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (h *HostBackend) runStep(ctx context.Context, plan BoundedPlan, argv []string, stdin string, rl Rlimits, budget time.Duration) (Result, error) {
	if budget <= 0 {
		return Result{}, fmt.Errorf("%w after %s", ErrTimeout, plan.Limits.Timeout)
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from the language registry, never from submissions
	cmd.Dir = plan.Workdir
	cmd.Env = os.Environ()
	for key, value := range plan.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdout := newCappedBuffer(h.maxOutput)
	stderr := newCappedBuffer(h.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	h.launcher.Prepare(cmd)

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, argv[0])
		}
		return Result{}, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}

	if err := h.launcher.ApplyRlimits(cmd.Process.Pid, rl); err != nil {
		// The watchdog still bounds the run; log and continue.
		h.logger.Warn("failed to apply rlimits",
			zap.Int("pid", cmd.Process.Pid),
			zap.Error(err))
	}

	watchdog := time.NewTimer(budget)
	defer watchdog.Stop()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-watchdog.C:
		h.launcher.Terminate(cmd)
		<-done
		return Result{}, fmt.Errorf("%w after %s", ErrTimeout, plan.Limits.Timeout)
	case <-ctx.Done():
		h.launcher.Terminate(cmd)
		<-done
		return Result{}, ctx.Err()
	}

	exitCode := 0
	if waitErr != nil {
		exitError := &exec.ExitError{}
		if errors.As(waitErr, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return Result{}, fmt.Errorf("failed to run %s: %w", argv[0], waitErr)
		}
	}

	return Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Truncated: stdout.truncated || stderr.truncated,
	}, nil
}
