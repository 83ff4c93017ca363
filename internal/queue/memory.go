package queue

import (
	"context"
	"sync"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

// MemoryStore is an in-process Store used by tests and single-node local
// development. It mirrors the Redis store's semantics, including atomic
// lease under concurrent callers.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]models.Job
	waiting []string
	delayed map[string]time.Time
}

// NewMemoryStore creates an empty in-process queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]models.Job),
		delayed: make(map[string]time.Time),
	}
}

// SaveJob upserts the job record.
func (s *MemoryStore) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// GetJob fetches a job by id.
func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrJobNotFound
	}
	copied := job
	return &copied, nil
}

// Lease atomically claims the oldest waiting job.
func (s *MemoryStore) Lease(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.waiting) > 0 {
		id := s.waiting[0]
		s.waiting = s.waiting[1:]

		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		now := time.Now()
		job.State = models.JobStateActive
		job.ProcessedAt = &now
		s.jobs[id] = job
		copied := job
		return &copied, nil
	}
	return nil, nil
}

// EnqueueWaiting saves the job and appends it to the waiting list under one
// lock acquisition.
func (s *MemoryStore) EnqueueWaiting(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.waiting = append(s.waiting, job.ID)
	return nil
}

// ScheduleRetry saves the job and schedules a delayed retry.
func (s *MemoryStore) ScheduleRetry(ctx context.Context, job *models.Job, readyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.delayed[job.ID] = readyAt
	return nil
}

// PromoteDue moves due delayed jobs to the waiting list.
func (s *MemoryStore) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoted := 0
	for id, readyAt := range s.delayed {
		if readyAt.After(now) {
			continue
		}
		delete(s.delayed, id)
		s.waiting = append(s.waiting, id)
		promoted++
	}
	return promoted, nil
}

// ListIDs returns all job ids in the given state.
func (s *MemoryStore) ListIDs(ctx context.Context, state models.JobState) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, job := range s.jobs {
		if state == "" || job.State == state {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteJob removes a job and its queue references.
func (s *MemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	delete(s.delayed, id)
	for i, w := range s.waiting {
		if w == id {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			break
		}
	}
	return nil
}

// CountByState returns job counts grouped by state.
func (s *MemoryStore) CountByState(ctx context.Context) (models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.QueueStats
	for _, job := range s.jobs {
		switch job.State {
		case models.JobStateWaiting:
			stats.Waiting++
		case models.JobStateActive:
			stats.Active++
		case models.JobStateCompleted:
			stats.Completed++
		case models.JobStateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
