package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/apperrors"
	"github.com/fsayahmob/DataTalk-sub001/pkg/models"
)

// fakeJobRepo is an in-memory JobRepository for service tests.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]models.CatalogJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]models.CatalogJob)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.CatalogJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepo) Update(ctx context.Context, job *models.CatalogJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, apperrors.ErrNotFound)
	}
	job.UpdatedAt = time.Now()
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
	}
	copy := job
	return &copy, nil
}

func (r *fakeJobRepo) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// capturingPublisher records all published events.
type capturingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event *models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
}

func (p *capturingPublisher) all() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.ProgressEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newTestTracker() (JobTracker, *fakeJobRepo, *capturingPublisher) {
	repo := newFakeJobRepo()
	pub := &capturingPublisher{}
	return NewJobTracker(repo, pub, zap.NewNop()), repo, pub
}

func TestJobTracker_CreateAndStart(t *testing.T) {
	tracker, _, pub := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindExtraction, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Progress)

	require.NoError(t, tracker.Start(ctx, job.ID, "discovering tables"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, "discovering tables", got.Step)

	require.NotEmpty(t, pub.all())
}

func TestJobTracker_ProgressIsMonotonic(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, job.ID, "starting"))

	require.NoError(t, tracker.Progress(ctx, job.ID, 40, "batch 1/3"))
	require.NoError(t, tracker.Progress(ctx, job.ID, 25, "retrying"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress, "progress must never regress")
	assert.Equal(t, "retrying", got.Step, "step still updates on clamped progress")
}

func TestJobTracker_ProgressCapsAtHundred(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindExtraction, "run-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, job.ID, "starting"))
	require.NoError(t, tracker.Progress(ctx, job.ID, 140, "overshoot"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
}

func TestJobTracker_FailFreezesProgress(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindEnrichment, "run-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, job.ID, "starting"))
	require.NoError(t, tracker.Progress(ctx, job.ID, 50, "batch 1/2 done"))

	require.NoError(t, tracker.Fail(ctx, job.ID, "llm endpoint unavailable"))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, 50, got.Progress, "progress frozen at last value before failure")
	require.NotNil(t, got.Error)
	assert.Equal(t, "llm endpoint unavailable", *got.Error)
}

func TestJobTracker_TerminalJobsAreImmutable(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindExtraction, "run-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, job.ID, "starting"))
	require.NoError(t, tracker.Complete(ctx, job.ID, `{"tables": 12}`))

	tests := []struct {
		name string
		op   func() error
	}{
		{"progress", func() error { return tracker.Progress(ctx, job.ID, 10, "x") }},
		{"fail", func() error { return tracker.Fail(ctx, job.ID, "late failure") }},
		{"complete", func() error { return tracker.Complete(ctx, job.ID, "") }},
		{"start", func() error { return tracker.Start(ctx, job.ID, "again") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrJobTerminal)
		})
	}

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
}

func TestJobTracker_CompleteSetsResult(t *testing.T) {
	tracker, _, pub := newTestTracker()
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobKindExtraction, "run-1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, job.ID, "starting"))
	require.NoError(t, tracker.Complete(ctx, job.ID, `{"tables": 3}`))

	got, err := tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, `{"tables": 3}`, *got.Result)

	events := pub.all()
	last := events[len(events)-1]
	assert.True(t, last.Done)
	assert.Equal(t, models.JobStatusCompleted, last.Status)
}
