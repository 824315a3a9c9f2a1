package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a catalog job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true for completed and failed jobs. Terminal jobs are
// immutable except for deletion by the retention sweep.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind distinguishes the two long-running operations the engine runs.
type JobKind string

const (
	JobKindExtraction JobKind = "extraction"
	JobKindEnrichment JobKind = "enrichment"
)

// CatalogJob is one tracked unit of long-running extraction or enrichment
// work. Job rows reference no catalog rows: jobs outlive any single
// enrichment attempt.
type CatalogJob struct {
	ID    uuid.UUID `json:"id"`
	RunID string    `json:"run_id"`
	Kind  JobKind   `json:"kind"`

	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"` // 0-100
	Step     string    `json:"step"`

	Error  *string `json:"error,omitempty"`
	Result *string `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
