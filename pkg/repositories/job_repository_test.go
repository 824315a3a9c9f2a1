//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
	"github.com/fsayahmob/DataTalk-sub001/pkg/testhelpers"
)

func newTestJob(kind models.JobKind) *models.CatalogJob {
	return &models.CatalogJob{
		ID:     uuid.New(),
		RunID:  "run-42",
		Kind:   kind,
		Status: models.JobStatusPending,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewJobRepository(testDB.DB)
	ctx := context.Background()

	job := newTestJob(models.JobKindExtraction)
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "run-42", got.RunID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
}

func TestJobRepository_Update(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewJobRepository(testDB.DB)
	ctx := context.Background()

	job := newTestJob(models.JobKindEnrichment)
	require.NoError(t, repo.Create(ctx, job))

	job.Status = models.JobStatusRunning
	job.Progress = 50
	job.Step = "enriching batch 1/2"
	require.NoError(t, repo.Update(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, "enriching batch 1/2", got.Step)
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewJobRepository(testDB.DB)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJobRepository_DeleteTerminalOlderThan(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewJobRepository(testDB.DB)
	ctx := context.Background()

	stale := newTestJob(models.JobKindExtraction)
	stale.Status = models.JobStatusCompleted
	require.NoError(t, repo.Create(ctx, stale))

	running := newTestJob(models.JobKindExtraction)
	running.Status = models.JobStatusRunning
	require.NoError(t, repo.Create(ctx, running))

	// Cutoff in the future: terminal jobs qualify, running jobs never do.
	deleted, err := repo.DeleteTerminalOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	_, err = repo.GetByID(ctx, stale.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.GetByID(ctx, running.ID)
	assert.NoError(t, err)
}
