package handlers

import (
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// EnqueueRequest asks for a document to be (re)processed.
type EnqueueRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

// JobListResponse is one page of jobs plus paging totals.
type JobListResponse struct {
	Jobs    []models.Job `json:"jobs"`
	Total   int64        `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

// JobLogsResponse is a job's processing log, oldest first.
type JobLogsResponse struct {
	JobID   string            `json:"job_id"`
	Entries []models.LogEntry `json:"entries"`
}

// CleanRequest bulk-removes finished jobs older than the given age.
type CleanRequest struct {
	State    models.JobState `json:"state" binding:"required"`
	OlderThan string         `json:"older_than" binding:"required" example:"168h"`
}

// CleanResponse reports how many jobs were purged.
type CleanResponse struct {
	Removed int `json:"removed"`
}

// SessionCreateRequest starts a collaboration session from the admin surface.
type SessionCreateRequest struct {
	DocumentID  string                    `json:"document_id" binding:"required"`
	CampaignID  string                    `json:"campaign_id"`
	RoomCode    string                    `json:"room_code"`
	PresenterID string                    `json:"presenter_id" binding:"required"`
	Settings    *models.SyncSettingsPatch `json:"settings,omitempty"`
}

// SessionResponse decorates a session with its live connection count.
type SessionResponse struct {
	Session     *models.Session `json:"session"`
	Connections int             `json:"connections"`
}
