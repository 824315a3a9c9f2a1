// Package services implements catalog extraction, enrichment, and the job
// lifecycle around them.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/events"
	"github.com/fsayahmob/DataTalk-sub001/pkg/metrics"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/repositories"
)

// JobTracker manages job lifecycle state. Progress is monotonic while a job
// runs, freezes at its last value on failure, and terminal jobs are immutable.
type JobTracker interface {
	// Create registers a new pending job.
	Create(ctx context.Context, kind models.JobKind, runID string) (*models.CatalogJob, error)

	// Get returns the current job state.
	Get(ctx context.Context, id uuid.UUID) (*models.CatalogJob, error)

	// Start moves a pending job to running.
	Start(ctx context.Context, id uuid.UUID, step string) error

	// Progress advances a running job. Regressions are clamped to the
	// current value; the step and message still update.
	Progress(ctx context.Context, id uuid.UUID, progress int, step string) error

	// Complete moves a running job to completed with progress 100.
	Complete(ctx context.Context, id uuid.UUID, result string) error

	// Fail moves a job to failed, freezing progress at its current value.
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

type jobTracker struct {
	repo      repositories.JobRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// NewJobTracker creates a JobTracker backed by the job repository.
func NewJobTracker(repo repositories.JobRepository, publisher events.Publisher, logger *zap.Logger) JobTracker {
	return &jobTracker{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("job_tracker"),
	}
}

var _ JobTracker = (*jobTracker)(nil)

func (t *jobTracker) Create(ctx context.Context, kind models.JobKind, runID string) (*models.CatalogJob, error) {
	job := &models.CatalogJob{
		ID:     uuid.New(),
		RunID:  runID,
		Kind:   kind,
		Status: models.JobStatusPending,
	}

	if err := t.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create %s job: %w", kind, err)
	}

	t.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("run_id", runID))

	t.publisher.Publish(ctx, models.EventFromJob(job, "job created"))
	return job, nil
}

func (t *jobTracker) Get(ctx context.Context, id uuid.UUID) (*models.CatalogJob, error) {
	return t.repo.GetByID(ctx, id)
}

func (t *jobTracker) Start(ctx context.Context, id uuid.UUID, step string) error {
	return t.transition(ctx, id, func(job *models.CatalogJob) error {
		job.Status = models.JobStatusRunning
		job.Step = step
		return nil
	}, "job started")
}

func (t *jobTracker) Progress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	return t.transition(ctx, id, func(job *models.CatalogJob) error {
		if progress > 100 {
			progress = 100
		}
		// Monotonicity: never move backwards.
		if progress > job.Progress {
			job.Progress = progress
		}
		job.Step = step
		return nil
	}, "")
}

func (t *jobTracker) Complete(ctx context.Context, id uuid.UUID, result string) error {
	return t.transition(ctx, id, func(job *models.CatalogJob) error {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.Step = "done"
		if result != "" {
			job.Result = &result
		}
		return nil
	}, "job completed")
}

func (t *jobTracker) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return t.transition(ctx, id, func(job *models.CatalogJob) error {
		// Progress freezes at its last recorded value.
		job.Status = models.JobStatusFailed
		job.Error = &message
		return nil
	}, "job failed")
}

// transition loads the job, applies mutate, and persists. Terminal jobs
// reject all further transitions.
func (t *jobTracker) transition(ctx context.Context, id uuid.UUID, mutate func(*models.CatalogJob) error, message string) error {
	job, err := t.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, apperrors.ErrJobTerminal)
	}

	if err := mutate(job); err != nil {
		return err
	}

	if err := t.repo.Update(ctx, job); err != nil {
		return err
	}

	if job.Status == models.JobStatusFailed {
		t.logger.Warn("job failed",
			zap.String("job_id", id.String()),
			zap.Stringp("error", job.Error),
			zap.Int("progress", job.Progress))
	}

	if job.Status.IsTerminal() {
		metrics.JobDuration.
			WithLabelValues(string(job.Kind), string(job.Status)).
			Observe(time.Since(job.CreatedAt).Seconds())
	}

	t.publisher.Publish(ctx, models.EventFromJob(job, message))
	return nil
}
