package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
)

// ContainerBackend executes each plan in a freshly created container:
// read-only root filesystem, no network, all capabilities dropped,
// non-root user, size-capped non-executable tmpfs for scratch space,
// and container-level memory, CPU-share, and pid quotas. The container
// is destroyed unconditionally after the run.
type ContainerBackend struct {
	logger    *zap.Logger
	engine    string
	maxOutput int
	cmdRunner CommandRunner
}

// ContainerBackendOption defines a functional option for ContainerBackend
type ContainerBackendOption func(*ContainerBackend)

// WithCommandRunner sets the CommandRunner for ContainerBackend
func WithCommandRunner(runner CommandRunner) ContainerBackendOption {
	return func(c *ContainerBackend) {
		c.cmdRunner = runner
	}
}

// NewContainerBackend creates a container execution backend using the
// configured engine CLI (docker or podman).
func NewContainerBackend(logger *zap.Logger, cfg *config.Config, opts ...ContainerBackendOption) *ContainerBackend {
	c := &ContainerBackend{
		logger:    logger,
		engine:    cfg.Sandbox.Engine,
		maxOutput: cfg.Sandbox.MaxOutputKB * 1024,
		cmdRunner: RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute runs the plan inside a disposable container. The workspace's
// source file is bind-mounted read-only; everything writable is tmpfs.
func (c *ContainerBackend) Execute(ctx context.Context, plan BoundedPlan, stdin string) (Result, error) {
	spec := plan.Spec
	containerName := fmt.Sprintf("runbox-%s-%d", spec.ID, time.Now().UnixNano())
	sourcePath := filepath.Join(plan.Workdir, spec.Filename)

	args := []string{
		c.engine, "run",
		"--name", containerName,
		"--rm",
		"--network", "none",
		"--read-only",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--user", "1000:1000",
		"--memory", fmt.Sprintf("%dm", plan.Limits.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", plan.Limits.MemoryMB),
		"--cpus", "0.5",
		"--pids-limit", strconv.Itoa(maxProcs),
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", "/work:rw,noexec,nosuid,size=64m",
	}

	// Compiled languages need somewhere their binary may execute from;
	// /work and /tmp stay noexec.
	if spec.Compiled() {
		args = append(args, "--tmpfs", "/scratch:rw,exec,nosuid,size=256m")
	}

	if stdin != "" {
		args = append(args, "--interactive")
	}

	for key, value := range plan.Env {
		args = append(args, "-e", key+"="+value)
	}

	args = append(args,
		"--workdir", "/work",
		"-v", sourcePath+":/work/"+spec.Filename+":ro",
		spec.Image,
	)
	args = append(args, spec.ContainerCommand...)

	runCtx, cancel := context.WithTimeout(ctx, plan.Limits.Timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := c.cmdRunner.RunCommand(runCtx, args, stdin)
	duration := time.Since(start)

	if runCtx.Err() != nil {
		// The CLI client died with the context; the container may
		// still be running and must be torn down.
		c.removeContainer(containerName)

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, plan.Limits.Timeout)
		}
		return Result{}, ctx.Err()
	}

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, c.engine)
		}
		return Result{}, fmt.Errorf("failed to run container: %w", err)
	}

	outStr, outTrunc := capString(stdout, c.maxOutput)
	errStr, errTrunc := capString(stderr, c.maxOutput)

	return Result{
		Stdout:    outStr,
		Stderr:    errStr,
		ExitCode:  exitCode,
		Duration:  duration,
		Truncated: outTrunc || errTrunc,
	}, nil
}

func (c *ContainerBackend) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, _, _, err := c.cmdRunner.RunCommand(ctx, []string{c.engine, "rm", "-f", name}, ""); err != nil {
		c.logger.Warn("failed to remove container",
			zap.String("container", name),
			zap.Error(err))
	}
}
