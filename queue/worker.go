package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/sandbox"
)

// runWorker processes jobs one at a time until the pool is stopped.
func (s *Service) runWorker(ctx context.Context, workerID int) {
	log := s.logger.With(zap.Int("worker_id", workerID))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker stopping")
			return
		case jobID := <-s.pending:
			s.process(ctx, jobID, log)
		}
	}
}

// process drives a single job end-to-end. The queued→started
// compare-and-set makes the worker the job's single owner; a job
// canceled while still queued fails the CAS and is skipped.
func (s *Service) process(ctx context.Context, jobID string, log *zap.Logger) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !s.transition(jobID, StateQueued, StateStarted, func(j *Job) {
		j.StartedAt = time.Now()
		j.cancel = cancel
	}) {
		return
	}

	job, err := s.snapshot(jobID)
	if err != nil {
		return
	}

	log = log.With(zap.String("job_id", jobID), zap.String("language", job.Language))
	log.Info("job started")

	spec, err := s.registry.Lookup(job.Language)
	if err != nil {
		// Validated at submission; reaching this is an engine fault.
		log.Error("language vanished from registry", zap.Error(err))
		s.fail(jobID, FailureInternal, "internal execution error")
		return
	}

	dir, err := s.workspaces.Acquire(jobID, spec.Filename, job.Code)
	if err != nil {
		log.Error("workspace acquisition failed", zap.Error(err))
		s.fail(jobID, FailureInternal, "internal execution error")
		return
	}
	defer s.workspaces.Release(dir)

	plan := sandbox.Synthesize(spec, dir)
	limits := sandbox.ResolveLimits(s.cfg, spec, job.TimeoutSec, job.MemoryMB)
	bounded := sandbox.ApplyLimits(plan, limits)

	result, err := s.backend.Execute(jobCtx, bounded, job.Stdin)

	switch {
	case err == nil:
		s.finish(jobID, &result)
		log.Info("job finished",
			zap.Int("exit_code", result.ExitCode),
			zap.Duration("duration", result.Duration))

	case errors.Is(err, sandbox.ErrTimeout):
		s.fail(jobID, FailureTimeout, err.Error())
		log.Info("job timed out", zap.Duration("limit", limits.Timeout))

	case errors.Is(err, sandbox.ErrToolNotFound):
		s.fail(jobID, FailureInfrastructure, err.Error())
		log.Error("missing tool", zap.Error(err))

	case errors.Is(err, context.Canceled):
		if s.transition(jobID, StateStarted, StateCanceled, func(j *Job) {
			j.EndedAt = time.Now()
		}) {
			log.Info("job canceled")
		}

	default:
		// Full context in the log, sanitized message to the caller.
		log.Error("execution failed", zap.Error(err))
		s.fail(jobID, FailureInternal, "internal execution error")
	}
}

func (s *Service) finish(jobID string, result *sandbox.Result) {
	s.transition(jobID, StateStarted, StateFinished, func(j *Job) {
		j.EndedAt = time.Now()
		j.Result = result
	})
}

func (s *Service) fail(jobID string, kind FailureKind, detail string) {
	s.transition(jobID, StateStarted, StateFailed, func(j *Job) {
		j.EndedAt = time.Now()
		j.Failure = kind
		j.Error = detail
	})
}

// runJanitor expires terminal jobs past the retention window.
func (s *Service) runJanitor(ctx context.Context) {
	interval := s.cfg.Retention() / 10
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.expire(time.Now().Add(-s.cfg.Retention()))
		}
	}
}

func (s *Service) expire(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		if job.State.Terminal() && job.EndedAt.Before(cutoff) {
			delete(s.jobs, id)
			s.logger.Debug("job expired from retention", zap.String("job_id", id))
		}
	}
}
