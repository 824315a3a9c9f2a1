package models

import "github.com/google/uuid"

// ProgressEvent is the transient payload published on the job progress
// channel after each unit of work. Events are never persisted; a subscriber
// that connects late falls back to polling the job record.
type ProgressEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Step     string    `json:"step"`
	Message  string    `json:"message,omitempty"`
	Result   *string   `json:"result,omitempty"`
	Error    *string   `json:"error,omitempty"`
	Done     bool      `json:"done"`
}

// EventFromJob builds a ProgressEvent snapshot of a job record.
func EventFromJob(job *CatalogJob, message string) *ProgressEvent {
	return &ProgressEvent{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Step:     job.Step,
		Message:  message,
		Result:   job.Result,
		Error:    job.Error,
		Done:     job.Status.IsTerminal(),
	}
}
