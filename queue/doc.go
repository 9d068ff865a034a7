// Package queue implements the asynchronous job queue and worker pool.
//
// Submissions become Jobs tracked through a monotonic lifecycle
// (queued, started, then exactly one of finished, failed, or canceled).
// A fixed-size pool of workers dequeues jobs in FIFO order and drives
// each one end-to-end: workspace acquisition, command synthesis,
// resource limiting, backend execution, and workspace release. State
// transitions go through compare-and-set semantics on the shared store,
// so a job can never be double-started or double-finished, and results
// are retained for a bounded window after completion.
package queue
