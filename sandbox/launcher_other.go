//go:build !linux

package sandbox

import "os/exec"

// platformLauncher is the fallback for platforms without prlimit and
// process groups: no OS-level caps, plain kill on terminate. The
// wall-clock watchdog still applies.
type platformLauncher struct{}

func (platformLauncher) Prepare(*exec.Cmd) {}

func (platformLauncher) ApplyRlimits(int, Rlimits) error {
	return nil
}

func (platformLauncher) Terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
