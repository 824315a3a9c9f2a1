package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/adapters/datasource"
	"github.com/fsayahmob/DataTalk-sub001/pkg/metrics"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/patterns"
	"github.com/fsayahmob/DataTalk-sub001/pkg/repositories"
)

// DiscovererOpener opens a schema discoverer for the configured source.
// Indirection keeps the extractor testable without a live database.
type DiscovererOpener func(ctx context.Context) (datasource.SchemaDiscoverer, error)

// ExtractionService walks the source schema and materializes structural
// metadata into the catalog. One bad table never fails the whole run.
type ExtractionService interface {
	// Run executes an extraction job to completion, recording its outcome on
	// the job. Intended to run inside the work queue.
	Run(ctx context.Context, jobID uuid.UUID)
}

type extractionService struct {
	open          DiscovererOpener
	catalog       repositories.CatalogRepository
	tracker       JobTracker
	maxConcurrent int
	logger        *zap.Logger
}

// NewExtractionService creates an ExtractionService.
func NewExtractionService(open DiscovererOpener, catalog repositories.CatalogRepository, tracker JobTracker, maxConcurrent int, logger *zap.Logger) ExtractionService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &extractionService{
		open:          open,
		catalog:       catalog,
		tracker:       tracker,
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("extraction"),
	}
}

var _ ExtractionService = (*extractionService)(nil)

func (s *extractionService) Run(ctx context.Context, jobID uuid.UUID) {
	if err := s.tracker.Start(ctx, jobID, "connecting to source"); err != nil {
		s.logger.Error("failed to start extraction job",
			zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	if err := s.run(ctx, jobID); err != nil {
		message := err.Error()
		if errors.Is(err, context.Canceled) {
			message = "cancelled"
		}
		// Failing the job can itself fail when the store is down; nothing
		// left to do but log it.
		if failErr := s.tracker.Fail(context.WithoutCancel(ctx), jobID, message); failErr != nil {
			s.logger.Error("failed to record job failure",
				zap.String("job_id", jobID.String()), zap.Error(failErr))
		}
	}
}

func (s *extractionService) run(ctx context.Context, jobID uuid.UUID) error {
	discoverer, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = discoverer.Close() }()

	if err := s.tracker.Progress(ctx, jobID, 5, "discovering tables"); err != nil {
		return err
	}

	tables, err := discoverer.DiscoverTables(ctx)
	if err != nil {
		return fmt.Errorf("discover tables: %w", err)
	}
	if len(tables) == 0 {
		return s.complete(ctx, jobID, 0, 0)
	}

	var (
		mu        sync.Mutex
		processed int
		failed    []string
	)

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for _, info := range tables {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(info datasource.TableInfo) {
			defer func() {
				<-sem
				wg.Done()
			}()

			err := s.extractTable(ctx, discoverer, info)

			mu.Lock()
			processed++
			done := processed
			if err != nil {
				failed = append(failed, info.SchemaName+"."+info.TableName)
				s.logger.Warn("table extraction failed, continuing",
					zap.String("job_id", jobID.String()),
					zap.String("schema", info.SchemaName),
					zap.String("table", info.TableName),
					zap.Error(err))
			} else {
				metrics.TablesExtracted.Inc()
			}
			mu.Unlock()

			// Reserve the last 5% for completion bookkeeping.
			progress := 5 + done*95/len(tables)
			step := fmt.Sprintf("extracting tables (%d/%d)", done, len(tables))
			if err := s.tracker.Progress(ctx, jobID, progress, step); err != nil {
				s.logger.Debug("progress update failed",
					zap.String("job_id", jobID.String()), zap.Error(err))
			}
		}(info)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(failed) > 0 {
		s.logger.Warn("extraction finished with failed tables",
			zap.String("job_id", jobID.String()),
			zap.Strings("failed_tables", failed))
	}

	return s.complete(ctx, jobID, len(tables)-len(failed), len(failed))
}

func (s *extractionService) complete(ctx context.Context, jobID uuid.UUID, extracted, failed int) error {
	result, err := json.Marshal(map[string]int{
		"tables_extracted": extracted,
		"tables_failed":    failed,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.tracker.Complete(ctx, jobID, string(result))
}

// extractTable pulls columns, statistics, samples, and pattern matches for
// one table and upserts it into the catalog.
func (s *extractionService) extractTable(ctx context.Context, discoverer datasource.SchemaDiscoverer, info datasource.TableInfo) error {
	columns, err := discoverer.DiscoverColumns(ctx, info.SchemaName, info.TableName)
	if err != nil {
		return fmt.Errorf("discover columns: %w", err)
	}

	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.ColumnName
	}

	stats, err := discoverer.AnalyzeColumnStats(ctx, info.SchemaName, info.TableName, names)
	if err != nil {
		return fmt.Errorf("analyze column stats: %w", err)
	}
	statsByName := make(map[string]datasource.ColumnStats, len(stats))
	for _, st := range stats {
		statsByName[st.ColumnName] = st
	}

	table := &models.TableMetadata{
		SchemaName: info.SchemaName,
		TableName:  info.TableName,
		RowCount:   info.RowCount,
		Columns:    make([]models.ColumnMetadata, 0, len(columns)),
	}

	for _, col := range columns {
		meta := models.ColumnMetadata{
			ColumnName:      col.ColumnName,
			DataType:        col.DataType,
			IsPrimaryKey:    col.IsPrimaryKey,
			OrdinalPosition: col.OrdinalPosition,
		}

		if st, ok := statsByName[col.ColumnName]; ok {
			meta.NullRate = st.NullRate()
			meta.DistinctCount = st.DistinctCount
		}

		samples, err := discoverer.SampleValues(ctx, info.SchemaName, info.TableName, col.ColumnName, models.MaxSampleValues)
		if err != nil {
			// Sampling is best-effort: the column still enters the catalog.
			s.logger.Debug("sampling failed",
				zap.String("table", info.TableName),
				zap.String("column", col.ColumnName),
				zap.Error(err))
		}
		meta.SampleValues = samples

		if name, rate, ok := patterns.Detect(samples); ok {
			meta.SetPattern(name, rate)
		}

		if isOrderedType(col.DataType) {
			vr, err := discoverer.ValueRange(ctx, info.SchemaName, info.TableName, col.ColumnName)
			if err == nil && vr != nil {
				meta.ValueRange = &models.ValueRange{Min: vr.Min, Max: vr.Max}
			}
		}

		fullContext := ColumnContext(&meta)
		meta.FullContext = &fullContext

		table.Columns = append(table.Columns, meta)
	}

	if err := s.catalog.UpsertTable(ctx, table); err != nil {
		return fmt.Errorf("upsert table: %w", err)
	}
	return nil
}

// isOrderedType reports whether min/max are meaningful for the data type.
func isOrderedType(dataType string) bool {
	dt := strings.ToLower(dataType)
	switch {
	case strings.Contains(dt, "int"),
		strings.Contains(dt, "numeric"),
		strings.Contains(dt, "decimal"),
		strings.Contains(dt, "float"),
		strings.Contains(dt, "double"),
		strings.Contains(dt, "real"),
		strings.Contains(dt, "money"),
		strings.Contains(dt, "date"),
		strings.Contains(dt, "time"):
		return true
	default:
		return false
	}
}
