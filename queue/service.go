package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runbox-dev/runbox/config"
	"github.com/runbox-dev/runbox/language"
	"github.com/runbox-dev/runbox/sandbox"
	"github.com/runbox-dev/runbox/workspace"
)

// Errors surfaced by the service contract.
var (
	// ErrEmptyCode is a validation error: the submission carried no code.
	ErrEmptyCode = errors.New("code cannot be empty")

	// ErrQueueFull indicates the queue is at capacity and the
	// submission was rejected without creating a job.
	ErrQueueFull = errors.New("queue is full")

	// ErrNotFound indicates the job id is unknown or has expired from
	// the retention window.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady indicates the job has not reached a terminal state.
	ErrNotReady = errors.New("job not finished yet")

	// ErrExecutionFailed wraps the stored failure detail when a result
	// is requested for a failed job.
	ErrExecutionFailed = errors.New("execution failed")
)

// SubmitRequest carries one execution submission.
type SubmitRequest struct {
	Language   string
	Code       string
	Stdin      string
	TimeoutSec int
	MemoryMB   int
}

// Service is the job queue and worker pool. It is the only resource
// shared across workers; every job state transition is serialized
// through its store.
type Service struct {
	logger     *zap.Logger
	cfg        *config.Config
	registry   *language.Registry
	workspaces *workspace.Manager
	backend    sandbox.Backend

	mu   sync.RWMutex
	jobs map[string]*Job

	pending chan string

	stopOnce sync.Once
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewService creates the queue service. Workers do not run until Start
// is called.
func NewService(logger *zap.Logger, cfg *config.Config, registry *language.Registry, workspaces *workspace.Manager, backend sandbox.Backend) *Service {
	return &Service{
		logger:     logger.With(zap.String("queue", cfg.Queue.Name)),
		cfg:        cfg,
		registry:   registry,
		workspaces: workspaces,
		backend:    backend,
		jobs:       make(map[string]*Job),
		pending:    make(chan string, cfg.Queue.Capacity),
	}
}

// Start launches the worker pool and the retention janitor.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	for i := 0; i < s.cfg.Queue.Workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.runWorker(ctx, id)
		}(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJanitor(ctx)
	}()

	s.logger.Info("worker pool started",
		zap.Int("workers", s.cfg.Queue.Workers),
		zap.Int("capacity", s.cfg.Queue.Capacity))
}

// Stop terminates the workers. Running jobs are torn down through
// context cancellation and recorded as canceled.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.wg.Wait()
		s.logger.Info("worker pool stopped")
	})
}

// Submit validates the request, creates the job in the queued state,
// and returns its id immediately; execution happens asynchronously.
func (s *Service) Submit(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Code) == "" {
		return "", ErrEmptyCode
	}
	if _, err := s.registry.Lookup(req.Language); err != nil {
		return "", err
	}

	job := &Job{
		ID:         uuid.NewString(),
		Language:   req.Language,
		Code:       req.Code,
		Stdin:      req.Stdin,
		TimeoutSec: req.TimeoutSec,
		MemoryMB:   req.MemoryMB,
		State:      StateQueued,
		EnqueuedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.pending <- job.ID:
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return "", ErrQueueFull
	}

	s.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("language", job.Language))

	return job.ID, nil
}

// Status returns a snapshot of the job's state and timestamps.
func (s *Service) Status(id string) (Job, error) {
	return s.snapshot(id)
}

// Result returns the execution result of a terminal job. While the job
// is still queued or running it fails with ErrNotReady; for a failed
// job it fails with ErrExecutionFailed carrying the stored detail.
func (s *Service) Result(id string) (sandbox.Result, error) {
	job, err := s.snapshot(id)
	if err != nil {
		return sandbox.Result{}, err
	}

	switch job.State {
	case StateFinished:
		return *job.Result, nil
	case StateFailed:
		return sandbox.Result{}, fmt.Errorf("%w: %s", ErrExecutionFailed, job.Error)
	case StateCanceled:
		return sandbox.Result{}, fmt.Errorf("%w: job was canceled", ErrExecutionFailed)
	default:
		return sandbox.Result{}, ErrNotReady
	}
}

// Cancel requests best-effort cancellation. A queued job is removed
// from consideration and never started; a started job has its process
// tree torn down by the owning worker. Repeated calls are idempotent,
// and a job that completes naturally before the signal lands keeps its
// natural terminal state.
func (s *Service) Cancel(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return "", ErrNotFound
	}

	switch job.State {
	case StateQueued:
		job.State = StateCanceled
		job.EndedAt = time.Now()
		s.logger.Info("queued job canceled", zap.String("job_id", id))
	case StateStarted:
		if job.cancelRequested {
			s.logger.Debug("cancellation already requested", zap.String("job_id", id))
			break
		}
		job.cancelRequested = true
		if job.cancel != nil {
			job.cancel()
		}
		s.logger.Info("cancellation signaled", zap.String("job_id", id))
	}

	return job.State, nil
}

// Execute is the synchronous one-shot variant: it submits the request
// and polls status until the job reaches a terminal state, then
// returns the job snapshot. It is not a separate execution path.
func (s *Service) Execute(ctx context.Context, req SubmitRequest) (Job, error) {
	id, err := s.Submit(req)
	if err != nil {
		return Job{}, err
	}

	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_, _ = s.Cancel(id)
			return Job{}, ctx.Err()
		case <-ticker.C:
			job, err := s.Status(id)
			if err != nil {
				return Job{}, err
			}
			if job.State.Terminal() {
				return job, nil
			}
		}
	}
}

// snapshot returns a copy of the job under the read lock.
func (s *Service) snapshot(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// transition performs a compare-and-set state change, applying mutate
// while the lock is held. It reports whether the transition happened.
func (s *Service) transition(id string, from, to State, mutate func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != from {
		return false
	}
	job.State = to
	if mutate != nil {
		mutate(job)
	}
	return true
}
