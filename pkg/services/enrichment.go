package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/llm"
	"github.com/fsayahmob/DataTalk-sub001/pkg/metrics"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/repositories"
)

const enrichmentSystemPrompt = `You are a data catalog assistant. You receive structural metadata for database tables and write concise business descriptions for each table and its columns. Ground every description in the evidence given (names, types, statistics, patterns, sample values). Respond with a JSON array only, no prose, one object per table:
[{"table": "schema.table", "description": "...", "columns": [{"column": "name", "description": "...", "synonyms": ["..."]}]}]
Omit a description you cannot support with evidence rather than guessing.`

// EnrichmentService generates natural-language descriptions for cataloged
// tables through the LLM and merges them back into the catalog. Batches run
// sequentially; a failed batch is skipped and the rest still run, with the
// job reported failed at the end carrying the first batch error.
type EnrichmentService interface {
	// Run executes an enrichment job over the given tables, or over the whole
	// catalog when tableIDs is empty. Intended to run inside the work queue.
	Run(ctx context.Context, jobID uuid.UUID, tableIDs []uuid.UUID)
}

type enrichmentService struct {
	catalog     repositories.CatalogRepository
	caller      *llm.Caller
	planner     *BatchPlanner
	tracker     JobTracker
	temperature float64
	logger      *zap.Logger
}

// NewEnrichmentService creates an EnrichmentService.
func NewEnrichmentService(catalog repositories.CatalogRepository, caller *llm.Caller, planner *BatchPlanner, tracker JobTracker, temperature float64, logger *zap.Logger) EnrichmentService {
	return &enrichmentService{
		catalog:     catalog,
		caller:      caller,
		planner:     planner,
		tracker:     tracker,
		temperature: temperature,
		logger:      logger.Named("enrichment"),
	}
}

var _ EnrichmentService = (*enrichmentService)(nil)

func (s *enrichmentService) Run(ctx context.Context, jobID uuid.UUID, tableIDs []uuid.UUID) {
	if err := s.tracker.Start(ctx, jobID, "loading catalog"); err != nil {
		s.logger.Error("failed to start enrichment job",
			zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	if err := s.run(ctx, jobID, tableIDs); err != nil {
		message := err.Error()
		if errors.Is(err, context.Canceled) {
			message = "cancelled"
		}
		if failErr := s.tracker.Fail(context.WithoutCancel(ctx), jobID, message); failErr != nil {
			s.logger.Error("failed to record job failure",
				zap.String("job_id", jobID.String()), zap.Error(failErr))
		}
	}
}

func (s *enrichmentService) run(ctx context.Context, jobID uuid.UUID, tableIDs []uuid.UUID) error {
	tables, err := s.loadTables(ctx, tableIDs)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}
	if len(tables) == 0 {
		return s.complete(ctx, jobID, 0, 0)
	}

	batches := s.planner.Plan(tables)

	var (
		firstErr  error
		enriched  int
		succeeded int
	)

	for i, batch := range batches {
		// Cancellation stops scheduling further batches; an in-flight call
		// already completed or failed on its own.
		if err := ctx.Err(); err != nil {
			return err
		}

		step := fmt.Sprintf("enriching batch %d/%d (%d tables)", i+1, len(batches), len(batch.Tables))
		s.progress(ctx, jobID, succeeded*100/len(batches), step)

		n, err := s.enrichBatch(ctx, batch)
		if err != nil {
			metrics.BatchesEnriched.WithLabelValues("failure").Inc()
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Later batches still run; the first error becomes the job's.
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}
			s.logger.Warn("enrichment batch failed, continuing",
				zap.String("job_id", jobID.String()),
				zap.Int("batch", i+1),
				zap.Int("batches", len(batches)),
				zap.Error(err))
			continue
		}
		metrics.BatchesEnriched.WithLabelValues("success").Inc()
		enriched += n
		succeeded++

		// Failed batches never advance progress, so a terminal failure
		// freezes at the share of batches that actually merged.
		s.progress(ctx, jobID, succeeded*100/len(batches), step)
	}

	if firstErr != nil {
		return firstErr
	}
	return s.complete(ctx, jobID, enriched, len(batches))
}

func (s *enrichmentService) progress(ctx context.Context, jobID uuid.UUID, progress int, step string) {
	if err := s.tracker.Progress(ctx, jobID, progress, step); err != nil {
		s.logger.Debug("progress update failed",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

func (s *enrichmentService) loadTables(ctx context.Context, tableIDs []uuid.UUID) ([]*models.TableMetadata, error) {
	if len(tableIDs) == 0 {
		return s.catalog.ListTables(ctx)
	}
	return s.catalog.GetTablesByIDs(ctx, tableIDs)
}

func (s *enrichmentService) complete(ctx context.Context, jobID uuid.UUID, enriched, batches int) error {
	result, err := json.Marshal(map[string]int{
		"tables_enriched": enriched,
		"batches":         batches,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.tracker.Complete(ctx, jobID, string(result))
}

// enrichBatch sends one batch to the model and merges the descriptions it
// returns. Returns the number of tables that received an enrichment.
func (s *enrichmentService) enrichBatch(ctx context.Context, batch Batch) (int, error) {
	prompt := buildEnrichmentPrompt(batch)

	enrichments, err := llm.CallJSON[[]models.TableEnrichment](ctx, s.caller, prompt, enrichmentSystemPrompt, s.temperature)
	if err != nil {
		return 0, err
	}

	byName := make(map[string]*models.TableEnrichment, len(enrichments))
	for i := range enrichments {
		byName[strings.ToLower(enrichments[i].Table)] = &enrichments[i]
	}

	applied := 0
	for _, table := range batch.Tables {
		enrichment := byName[strings.ToLower(table.QualifiedName())]
		if enrichment == nil {
			// Tolerate bare table names in the response.
			enrichment = byName[strings.ToLower(table.TableName)]
		}
		if enrichment == nil {
			s.logger.Warn("model returned no enrichment for table",
				zap.String("table", table.QualifiedName()))
			continue
		}

		if err := s.catalog.ApplyEnrichment(ctx, table.ID, enrichment); err != nil {
			return applied, fmt.Errorf("apply enrichment for %s: %w", table.QualifiedName(), err)
		}
		applied++
	}

	return applied, nil
}

// buildEnrichmentPrompt renders the batch contexts as one prompt.
func buildEnrichmentPrompt(batch Batch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe the following %d table(s).\n\n", len(batch.Tables))
	for _, context := range batch.Contexts {
		b.WriteString(context)
		b.WriteString("\n")
	}
	return b.String()
}
