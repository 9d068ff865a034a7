package sandbox

import "os/exec"

// Launcher abstracts the platform-specific parts of spawning a child:
// process-group placement, rlimit application, and whole-tree
// termination. One implementation is selected at build time.
type Launcher interface {
	// Prepare configures the command before Start (process group
	// placement where supported).
	Prepare(cmd *exec.Cmd)

	// ApplyRlimits applies OS-level caps to the started child. Zero
	// fields are skipped; unsupported platforms return nil.
	ApplyRlimits(pid int, rl Rlimits) error

	// Terminate kills the child and all of its descendants. A
	// two-phase or shell-wrapped command can leave orphans if killed
	// naively.
	Terminate(cmd *exec.Cmd)
}

// NewLauncher returns the launcher for the current platform.
func NewLauncher() Launcher {
	return platformLauncher{}
}
