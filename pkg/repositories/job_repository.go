package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/database"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// JobRepository provides data access for catalog jobs.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *models.CatalogJob) error

	// Update persists the mutable job fields.
	Update(ctx context.Context, job *models.CatalogJob) error

	// GetByID retrieves a job. Returns apperrors.ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogJob, error)

	// DeleteTerminalOlderThan removes completed and failed jobs last updated
	// before the cutoff. Returns the number of rows removed.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *database.DB) JobRepository {
	return &jobRepository{db: db}
}

var _ JobRepository = (*jobRepository)(nil)

func (r *jobRepository) Create(ctx context.Context, job *models.CatalogJob) error {
	const query = `
		INSERT INTO catalog_jobs (id, run_id, kind, status, progress, step, error, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		job.ID, job.RunID, job.Kind, job.Status, job.Progress, job.Step,
		job.Error, job.Result, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) Update(ctx context.Context, job *models.CatalogJob) error {
	const query = `
		UPDATE catalog_jobs
		SET status = $2, progress = $3, step = $4, error = $5, result = $6, updated_at = $7
		WHERE id = $1`

	job.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, query,
		job.ID, job.Status, job.Progress, job.Step, job.Error, job.Result, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogJob, error) {
	const query = `
		SELECT id, run_id, kind, status, progress, step, error, result, created_at, updated_at
		FROM catalog_jobs
		WHERE id = $1`

	var job models.CatalogJob
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.RunID, &job.Kind, &job.Status, &job.Progress, &job.Step,
		&job.Error, &job.Result, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, mapNotFound(err))
	}
	return &job, nil
}

func (r *jobRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM catalog_jobs
		WHERE status IN ('completed', 'failed')
		  AND updated_at < $1`

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
