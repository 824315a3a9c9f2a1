// Package workqueue runs catalog jobs in the background with per-job
// cancellation and graceful shutdown.
package workqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
)

// JobFunc is the body of a background job. It must honor ctx cancellation
// and record its own outcome; the runner only manages execution.
type JobFunc func(ctx context.Context)

// Runner executes job functions in background goroutines. Each job gets its
// own cancelable context derived from the runner's root context.
type Runner struct {
	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	closed  bool

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	logger *zap.Logger
}

// NewRunner creates a job runner.
func NewRunner(logger *zap.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		running:   make(map[uuid.UUID]context.CancelFunc),
		ctx:       ctx,
		cancelAll: cancel,
		logger:    logger.Named("workqueue"),
	}
}

// Submit starts fn in a background goroutine keyed by jobID.
// Returns apperrors.ErrConflict when the job is already running and an error
// after Shutdown.
func (r *Runner) Submit(jobID uuid.UUID, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("runner is shut down")
	}
	if _, ok := r.running[jobID]; ok {
		return fmt.Errorf("job %s already running: %w", jobID, apperrors.ErrConflict)
	}

	jobCtx, cancel := context.WithCancel(r.ctx)
	r.running[jobID] = cancel
	r.wg.Add(1)

	r.logger.Info("job started", zap.String("job_id", jobID.String()))

	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.running, jobID)
			r.mu.Unlock()
			r.wg.Done()
			r.logger.Info("job finished", zap.String("job_id", jobID.String()))
		}()
		fn(jobCtx)
	}()

	return nil
}

// Cancel signals a running job's context. Returns false when the job is not
// currently running.
func (r *Runner) Cancel(jobID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancel, ok := r.running[jobID]
	if !ok {
		return false
	}
	cancel()
	r.logger.Info("job cancellation requested", zap.String("job_id", jobID.String()))
	return true
}

// IsRunning reports whether the job currently has a goroutine.
func (r *Runner) IsRunning(jobID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

// Shutdown cancels all running jobs and waits for them to exit, bounded by
// ctx. No new jobs are accepted afterwards.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancelAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}
