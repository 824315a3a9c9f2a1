package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/events"
	"github.com/fsayahmob/DataTalk-sub001/pkg/llm"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// enrichmentResponse renders a model reply describing each table in the prompt.
func enrichmentResponse(tables []*models.TableMetadata) string {
	parts := make([]string, len(tables))
	for i, table := range tables {
		parts[i] = fmt.Sprintf(
			`{"table": %q, "description": "Description of %s.", "columns": [{"column": "id", "description": "Row identifier.", "synonyms": ["key"]}]}`,
			table.QualifiedName(), table.TableName)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func seededTables(n int) []*models.TableMetadata {
	tables := make([]*models.TableMetadata, n)
	for i := range tables {
		tables[i] = &models.TableMetadata{
			ID:         uuid.New(),
			SchemaName: "public",
			TableName:  fmt.Sprintf("table_%02d", i),
			RowCount:   10,
			Columns: []models.ColumnMetadata{
				{ColumnName: "id", DataType: "bigint", IsPrimaryKey: true, OrdinalPosition: 1},
			},
		}
	}
	return tables
}

func newEnrichmentFixture(t *testing.T, catalog *fakeCatalogRepo, client llm.LLMClient, maxTables int) (EnrichmentService, JobTracker) {
	t.Helper()
	tracker := NewJobTracker(newFakeJobRepo(), events.NewPublisher(nil, zap.NewNop()), zap.NewNop())
	caller := llm.NewCaller(client, llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()), nil, zap.NewNop())
	planner := NewBatchPlanner(maxTables, 1_000_000, zap.NewNop())
	return NewEnrichmentService(catalog, caller, planner, tracker, 0.2, zap.NewNop()), tracker
}

func TestEnrichmentService_EnrichesWholeCatalog(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(3)

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: enrichmentResponse(catalog.tables)}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 15)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	assert.Contains(t, *final.Result, `"tables_enriched":3`)

	require.Len(t, catalog.enriched, 3)
	first := catalog.enriched[catalog.tables[0].ID]
	require.NotNil(t, first)
	assert.Equal(t, "Description of table_00.", first.Description)
	require.Len(t, first.Columns, 1)
	assert.Equal(t, "Row identifier.", first.Columns[0].Description)
}

func TestEnrichmentService_SubsetByTableID(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(5)
	subset := []uuid.UUID{catalog.tables[1].ID, catalog.tables[3].ID}

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{
			Content: enrichmentResponse([]*models.TableMetadata{catalog.tables[1], catalog.tables[3]}),
		}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 15)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, subset)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Len(t, catalog.enriched, 2)
	assert.Nil(t, catalog.enriched[catalog.tables[0].ID])
	assert.NotNil(t, catalog.enriched[catalog.tables[1].ID])
}

func TestEnrichmentService_FailedBatchFailsJobKeepingEarlierWork(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(4)

	// Two tables per batch. First batch answers, second batch hard-fails.
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		if mock.GenerateResponseCalls > 1 {
			return nil, llm.NewError(llm.ErrorTypeBadRequest, "invalid request", false, nil)
		}
		return &llm.GenerateResponseResult{
			Content: enrichmentResponse(catalog.tables[:2]),
		}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 2)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	assert.Equal(t, 50, final.Progress)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "batch 2/2")

	// The first batch's descriptions survive the failure.
	assert.Len(t, catalog.enriched, 2)
	assert.NotNil(t, catalog.enriched[catalog.tables[0].ID])
	assert.NotNil(t, catalog.enriched[catalog.tables[1].ID])
	assert.Nil(t, catalog.enriched[catalog.tables[2].ID])
}

func TestEnrichmentService_CancellationStopsRemainingBatches(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The job is cancelled while the first batch is in flight; the second
	// batch must never be scheduled.
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(callCtx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		cancel()
		return &llm.GenerateResponseResult{Content: enrichmentResponse(catalog.tables[:2])}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 2)

	job, err := tracker.Create(context.Background(), models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "cancelled", *final.Error)
	assert.Equal(t, 50, final.Progress)
	assert.Equal(t, 1, mock.GenerateResponseCalls)

	assert.NotNil(t, catalog.enriched[catalog.tables[0].ID])
	assert.Nil(t, catalog.enriched[catalog.tables[2].ID])
}

func TestEnrichmentService_LaterBatchesRunAfterFailure(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(6)

	// Two tables per batch. The middle batch hard-fails; the first and last
	// still merge their descriptions.
	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		switch mock.GenerateResponseCalls {
		case 2:
			return nil, llm.NewError(llm.ErrorTypeAuth, "invalid api key", false, nil)
		case 1:
			return &llm.GenerateResponseResult{Content: enrichmentResponse(catalog.tables[:2])}, nil
		default:
			return &llm.GenerateResponseResult{Content: enrichmentResponse(catalog.tables[4:6])}, nil
		}
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 2)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "batch 2/3")
	assert.Equal(t, 66, final.Progress)
	assert.Equal(t, 3, mock.GenerateResponseCalls)

	assert.NotNil(t, catalog.enriched[catalog.tables[0].ID])
	assert.Nil(t, catalog.enriched[catalog.tables[2].ID])
	assert.NotNil(t, catalog.enriched[catalog.tables[5].ID])
}

func TestEnrichmentService_MalformedResponseFailsJob(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(1)

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{Content: "I cannot answer that."}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 15)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Contains(t, *final.Error, "malformed")
	assert.Equal(t, 1, mock.GenerateResponseCalls)
	assert.Empty(t, catalog.enriched)
}

func TestEnrichmentService_MissingTableInResponseTolerated(t *testing.T) {
	catalog := newFakeCatalogRepo()
	catalog.tables = seededTables(2)

	mock := llm.NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.GenerateResponseResult, error) {
		return &llm.GenerateResponseResult{
			Content: enrichmentResponse(catalog.tables[:1]),
		}, nil
	}

	svc, tracker := newEnrichmentFixture(t, catalog, mock, 15)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Contains(t, *final.Result, `"tables_enriched":1`)
}

func TestEnrichmentService_EmptyCatalogCompletes(t *testing.T) {
	catalog := newFakeCatalogRepo()

	svc, tracker := newEnrichmentFixture(t, catalog, llm.NewMockLLMClient(), 15)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)

	svc.Run(ctx, job.ID, nil)

	final, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Contains(t, *final.Result, `"tables_enriched":0`)
}
