// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running
// untrusted code under strict resource bounds. A command Plan is
// synthesized from a language spec and a workspace, bounded by the
// resource limiter, and executed by one of two interchangeable
// backends: HostBackend runs the plan as direct child processes under
// OS-level rlimits and a wall-clock watchdog; ContainerBackend runs it
// inside a disposable, network-isolated, read-only-root container that
// is destroyed after the run.
package sandbox
