package sandbox

import (
	"time"

	"github.com/runbox-dev/runbox/config"
	"github.com/runbox-dev/runbox/language"
)

// maxProcs caps the process/thread count of a run step. Prevents fork
// bombs while leaving room for runtime worker threads.
const maxProcs = 64

// cpuHeadroomSec is added on top of the wall clock for the RLIMIT_CPU
// cap so the watchdog, not the kernel, is the primary enforcement.
const cpuHeadroomSec = 1

// Limits are the per-job resource bounds after defaults and clamping.
type Limits struct {
	Timeout  time.Duration
	MemoryMB int
}

// Rlimits are the OS-level caps applied to a run step where the
// platform supports them. A zero field means no cap for that resource.
type Rlimits struct {
	AddressSpaceBytes uint64
	CPUSeconds        uint64
	MaxProcs          uint64
}

// BoundedPlan is a Plan wrapped with its resource bounds. The rlimits
// apply to the run step only; the compiler gets headroom and is bounded
// by the wall clock alone.
type BoundedPlan struct {
	Plan
	Limits  Limits
	Rlimits Rlimits
}

// ResolveLimits merges submission overrides with the configured
// per-class defaults and clamps them to the configured maxima. Zero
// override values select the defaults.
func ResolveLimits(cfg *config.Config, spec language.Spec, timeoutSec, memoryMB int) Limits {
	if timeoutSec <= 0 {
		switch spec.Class {
		case language.ClassCompiled:
			timeoutSec = cfg.Sandbox.CompiledTimeoutSec
		default:
			timeoutSec = cfg.Sandbox.InterpretedTimeoutSec
		}
	}
	if timeoutSec > cfg.Sandbox.MaxTimeoutSec {
		timeoutSec = cfg.Sandbox.MaxTimeoutSec
	}

	if memoryMB <= 0 {
		memoryMB = cfg.Sandbox.MemoryMB
	}
	if memoryMB > cfg.Sandbox.MaxMemoryMB {
		memoryMB = cfg.Sandbox.MaxMemoryMB
	}

	return Limits{
		Timeout:  time.Duration(timeoutSec) * time.Second,
		MemoryMB: memoryMB,
	}
}

// ApplyLimits wraps a plan with resource bounds. The address-space cap
// is attached only when the language's policy marks it safe; runtimes
// exempted there are bounded through their Env overrides instead. The
// wall-clock watchdog is independent of these caps and always applies.
func ApplyLimits(plan Plan, limits Limits) BoundedPlan {
	rl := Rlimits{
		CPUSeconds: uint64(limits.Timeout/time.Second) + cpuHeadroomSec,
		MaxProcs:   maxProcs,
	}
	if plan.Spec.CapAddressSpace {
		rl.AddressSpaceBytes = uint64(limits.MemoryMB) << 20
	}

	return BoundedPlan{
		Plan:    plan,
		Limits:  limits,
		Rlimits: rl,
	}
}
