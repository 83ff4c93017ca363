package models

import "time"

// JobState represents the lifecycle state of a processing job
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobTypeProcessDocument is currently the only job type.
const JobTypeProcessDocument = "process-document"

// Job represents one unit of background document-processing work.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	DocumentID  string     `json:"document_id"`
	State       JobState   `json:"state"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	Terminal    bool       `json:"terminal"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// QueueStats holds job counts grouped by state.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
