package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/workqueue"
)

// CatalogService is the public face of the engine: it accepts extraction and
// enrichment submissions, hands the work to the runner, and exposes job
// status and cancellation.
type CatalogService interface {
	// SubmitExtraction starts an extraction job for a pipeline run and
	// returns it immediately.
	SubmitExtraction(ctx context.Context, runID string) (*models.CatalogJob, error)

	// SubmitEnrichment starts an enrichment job covering the given tables,
	// or the whole catalog when tableIDs is empty.
	SubmitEnrichment(ctx context.Context, runID string, tableIDs []uuid.UUID) (*models.CatalogJob, error)

	// GetJob returns the current state of a job.
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.CatalogJob, error)

	// Cancel stops a running job or fails a pending one. Terminal jobs
	// return apperrors.ErrJobTerminal.
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

type catalogService struct {
	extraction ExtractionService
	enrichment EnrichmentService
	tracker    JobTracker
	runner     *workqueue.Runner
	logger     *zap.Logger
}

// NewCatalogService creates the CatalogService facade.
func NewCatalogService(extraction ExtractionService, enrichment EnrichmentService, tracker JobTracker, runner *workqueue.Runner, logger *zap.Logger) CatalogService {
	return &catalogService{
		extraction: extraction,
		enrichment: enrichment,
		tracker:    tracker,
		runner:     runner,
		logger:     logger.Named("catalog_service"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) SubmitExtraction(ctx context.Context, runID string) (*models.CatalogJob, error) {
	job, err := s.tracker.Create(ctx, models.JobKindExtraction, runID)
	if err != nil {
		return nil, fmt.Errorf("create extraction job: %w", err)
	}

	if err := s.runner.Submit(job.ID, func(jobCtx context.Context) {
		s.extraction.Run(jobCtx, job.ID)
	}); err != nil {
		return nil, s.failUnstarted(ctx, job.ID, err)
	}

	s.logger.Info("extraction submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", runID))
	return job, nil
}

func (s *catalogService) SubmitEnrichment(ctx context.Context, runID string, tableIDs []uuid.UUID) (*models.CatalogJob, error) {
	job, err := s.tracker.Create(ctx, models.JobKindEnrichment, runID)
	if err != nil {
		return nil, fmt.Errorf("create enrichment job: %w", err)
	}

	ids := append([]uuid.UUID(nil), tableIDs...)
	if err := s.runner.Submit(job.ID, func(jobCtx context.Context) {
		s.enrichment.Run(jobCtx, job.ID, ids)
	}); err != nil {
		return nil, s.failUnstarted(ctx, job.ID, err)
	}

	s.logger.Info("enrichment submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("run_id", runID),
		zap.Int("table_count", len(tableIDs)))
	return job, nil
}

func (s *catalogService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.CatalogJob, error) {
	return s.tracker.Get(ctx, jobID)
}

func (s *catalogService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		// Surfaces ErrJobTerminal through the same path every mutation uses.
		return s.tracker.Fail(ctx, jobID, "cancelled")
	}

	if s.runner.Cancel(jobID) {
		// The job goroutine observes its context and records the failure.
		s.logger.Info("cancellation signalled", zap.String("job_id", jobID.String()))
		return nil
	}

	// Not running: the job never reached the runner or already finished its
	// goroutine without a terminal write. Fail it directly.
	return s.tracker.Fail(ctx, jobID, "cancelled")
}

// failUnstarted marks a job that never made it into the runner as failed and
// returns the submission error.
func (s *catalogService) failUnstarted(ctx context.Context, jobID uuid.UUID, submitErr error) error {
	if err := s.tracker.Fail(ctx, jobID, "failed to start: "+submitErr.Error()); err != nil {
		s.logger.Error("failed to mark unstarted job",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
	return fmt.Errorf("submit job: %w", submitErr)
}
