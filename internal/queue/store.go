package queue

import (
	"context"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

// Store is the durable backing of the job queue. All mutation of queue state
// funnels through it; no other component touches the underlying keys. Every
// operation is atomic at the level of a single job, which is what lease
// exclusivity and state-transition safety rest on.
type Store interface {
	// SaveJob upserts the job record and moves it to the index of its
	// current state.
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob fetches a job by id, returning models.ErrJobNotFound when absent.
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// Lease atomically pops the oldest waiting job and marks it active.
	// Concurrent callers never receive the same job. Returns nil when the
	// queue is empty.
	Lease(ctx context.Context) (*models.Job, error)

	// EnqueueWaiting upserts the job record and appends it to the tail of
	// the waiting list in one atomic step, so a job can never exist in state
	// waiting without being reachable by Lease.
	EnqueueWaiting(ctx context.Context, job *models.Job) error

	// ScheduleRetry upserts the job record and schedules it to re-enter the
	// waiting list at readyAt, atomically for the same reason.
	ScheduleRetry(ctx context.Context, job *models.Job, readyAt time.Time) error

	// PromoteDue moves all delayed jobs whose ready time has passed back to
	// the waiting list, returning how many were promoted.
	PromoteDue(ctx context.Context, now time.Time) (int, error)

	// ListIDs returns the ids of all jobs in the given state. An empty state
	// returns every known job id.
	ListIDs(ctx context.Context, state models.JobState) ([]string, error)

	// DeleteJob removes the job record and all queue references to it.
	DeleteJob(ctx context.Context, id string) error

	// CountByState returns job counts grouped by state.
	CountByState(ctx context.Context) (models.QueueStats, error)
}
