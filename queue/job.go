package queue

import (
	"context"
	"time"

	"github.com/runbox-dev/runbox/sandbox"
)

// State is a job lifecycle state. Transitions are monotonic:
// queued → started → {finished | failed | canceled}.
type State string

// Job lifecycle states
const (
	StateQueued   State = "queued"
	StateStarted  State = "started"
	StateFinished State = "finished"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCanceled
}

// FailureKind classifies why a job reached the failed state, so
// callers can branch between retrying later and fixing their input.
type FailureKind string

// Failure categories
const (
	FailureNone           FailureKind = ""
	FailureTimeout        FailureKind = "timeout"
	FailureInfrastructure FailureKind = "infrastructure"
	FailureInternal       FailureKind = "internal"
)

// Job tracks one execution request through its lifecycle. A Job is
// mutated only by the worker that owns it or by a cancellation
// request; both paths serialize through the service store.
type Job struct {
	ID       string
	Language string
	Code     string
	Stdin    string

	// Submission overrides; zero selects the configured defaults.
	TimeoutSec int
	MemoryMB   int

	State      State
	EnqueuedAt time.Time
	StartedAt  time.Time
	EndedAt    time.Time

	// Result is set only when the job finished (including runtime
	// failures of the submitted program). Error and Failure are set
	// only when the job failed.
	Result  *sandbox.Result
	Error   string
	Failure FailureKind

	cancel          context.CancelFunc
	cancelRequested bool
}

// Success reports whether the submitted program ran to completion with
// exit code zero.
func (j *Job) Success() bool {
	return j.State == StateFinished && j.Result != nil && j.Result.Success()
}
