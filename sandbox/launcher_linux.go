//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// platformLauncher is the Linux implementation: children run in their
// own process group and rlimits are applied with prlimit(2).
type platformLauncher struct{}

func (platformLauncher) Prepare(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (platformLauncher) ApplyRlimits(pid int, rl Rlimits) error {
	set := func(resource int, value uint64) error {
		if value == 0 {
			return nil
		}
		lim := unix.Rlimit{Cur: value, Max: value}
		return unix.Prlimit(pid, resource, &lim, nil)
	}

	if err := set(unix.RLIMIT_AS, rl.AddressSpaceBytes); err != nil {
		return err
	}
	if err := set(unix.RLIMIT_CPU, rl.CPUSeconds); err != nil {
		return err
	}
	return set(unix.RLIMIT_NPROC, rl.MaxProcs)
}

func (platformLauncher) Terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid addresses the whole process group.
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
