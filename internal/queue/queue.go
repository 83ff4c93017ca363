package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/observability"
	"go.uber.org/zap"
)

const maxBackoff = 5 * time.Minute

// Queue is a durable FIFO queue of document-processing jobs with
// retry/backoff and dead-lettering.
type Queue struct {
	store       Store
	logger      *logging.SafeLogger
	maxAttempts int
	backoffBase time.Duration
}

// New creates a queue over the given store.
func New(store Store, maxAttempts int, backoffBase time.Duration, logger *logging.SafeLogger) *Queue {
	return &Queue{
		store:       store,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// Enqueue creates a new waiting job for the given document.
func (q *Queue) Enqueue(ctx context.Context, jobType, documentID string) (*models.Job, error) {
	job := &models.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		DocumentID:  documentID,
		State:       models.JobStateWaiting,
		MaxAttempts: q.maxAttempts,
		CreatedAt:   time.Now(),
	}

	if err := q.store.EnqueueWaiting(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	observability.JobsEnqueued.WithLabelValues(jobType).Inc()
	q.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", jobType),
		zap.String("document_id", documentID))
	return job, nil
}

// Lease atomically claims the oldest waiting job, transitioning it to active.
// Returns nil when the queue is empty.
func (q *Queue) Lease(ctx context.Context) (*models.Job, error) {
	job, err := q.store.Lease(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	q.logger.Debug("job leased",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts))
	return job, nil
}

// Complete marks an active job as successfully finished.
func (q *Queue) Complete(ctx context.Context, id string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	job.State = models.JobStateCompleted
	job.FinishedAt = &now
	job.LastError = ""
	if err := q.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}

	observability.JobsCompleted.WithLabelValues(job.Type).Inc()
	q.logger.Info("job completed", zap.String("job_id", id))
	return nil
}

// Fail records a failed attempt. Transient failures are re-enqueued with
// exponential backoff until the attempt budget is exhausted; permanent
// failures and exhausted jobs go terminal and stay failed for manual retry.
func (q *Queue) Fail(ctx context.Context, id, reason string, kind models.ErrorKind) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}

	job.Attempts++
	job.LastError = reason

	if kind == models.ErrorKindPermanent || job.Attempts >= job.MaxAttempts {
		now := time.Now()
		job.State = models.JobStateFailed
		job.Terminal = true
		job.FinishedAt = &now
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to dead-letter job %s: %w", id, err)
		}

		observability.JobsFailed.WithLabelValues(job.Type, "terminal").Inc()
		q.logger.Error("job failed terminally",
			zap.String("job_id", id),
			zap.String("reason", reason),
			zap.String("error_kind", string(kind)),
			zap.Int("attempts", job.Attempts))
		return nil
	}

	delay := q.backoffDelay(job.Attempts)
	job.State = models.JobStateWaiting
	if err := q.store.ScheduleRetry(ctx, job, time.Now().Add(delay)); err != nil {
		return fmt.Errorf("failed to schedule retry of job %s: %w", id, err)
	}

	observability.JobsFailed.WithLabelValues(job.Type, "retried").Inc()
	q.logger.Warn("job re-queued for retry",
		zap.String("job_id", id),
		zap.String("reason", reason),
		zap.Int("attempt", job.Attempts),
		zap.Duration("backoff_delay", delay))
	return nil
}

// backoffDelay computes the exponential retry delay for the given failed
// attempt count: base * 2^(attempts-1), capped.
func (q *Queue) backoffDelay(attempts int) time.Duration {
	delay := q.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// PromoteDue moves delayed retries whose backoff has elapsed back into the
// waiting list. Called periodically by the maintenance loop.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	n, err := q.store.PromoteDue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Debug("promoted delayed jobs", zap.Int("count", n))
	}
	return n, nil
}

// Get fetches a single job by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.Job, error) {
	return q.store.GetJob(ctx, id)
}

// Retry resets a terminally failed job to waiting without touching its
// attempt count. Only failed jobs can be retried.
func (q *Queue) Retry(ctx context.Context, id string) error {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State != models.JobStateFailed {
		return fmt.Errorf("job %s is %s, only failed jobs can be retried", id, job.State)
	}

	job.State = models.JobStateWaiting
	job.Terminal = false
	job.FinishedAt = nil
	if err := q.store.EnqueueWaiting(ctx, job); err != nil {
		return fmt.Errorf("failed to re-queue job %s: %w", id, err)
	}

	q.logger.Info("job manually retried", zap.String("job_id", id))
	return nil
}

// Remove deletes a job outright.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, err := q.store.GetJob(ctx, id); err != nil {
		return err
	}
	if err := q.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}
	q.logger.Info("job removed", zap.String("job_id", id))
	return nil
}

// List returns jobs filtered by state, oldest first, with pagination.
// An empty state lists all jobs.
func (q *Queue) List(ctx context.Context, state models.JobState, page, perPage int) ([]models.Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}

	ids, err := q.store.ListIDs(ctx, state)
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]models.Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.store.GetJob(ctx, id)
		if err != nil {
			// Index membership can briefly outlive the record; skip.
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	total := int64(len(jobs))
	start := (page - 1) * perPage
	if start >= len(jobs) {
		return []models.Job{}, total, nil
	}
	end := start + perPage
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[start:end], total, nil
}

// Clean removes completed or failed jobs that finished more than olderThan
// ago, returning how many were purged.
func (q *Queue) Clean(ctx context.Context, state models.JobState, olderThan time.Duration) (int, error) {
	if state != models.JobStateCompleted && state != models.JobStateFailed {
		return 0, fmt.Errorf("only completed or failed jobs can be cleaned, got %q", state)
	}

	ids, err := q.store.ListIDs(ctx, state)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, id := range ids {
		job, err := q.store.GetJob(ctx, id)
		if err != nil {
			continue
		}
		if job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		if err := q.store.DeleteJob(ctx, id); err != nil {
			q.logger.Warn("failed to clean job",
				zap.String("job_id", id),
				zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		q.logger.Info("cleaned old jobs",
			zap.String("state", string(state)),
			zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats returns job counts grouped by state.
func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	return q.store.CountByState(ctx)
}
