package joblog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/redisclient"
)

const logKeyPrefix = "jobs:log:"

// Sink is an append-only, per-job log stream with bounded retention.
// Availability problems surface as transient errors; log loss is never fatal
// to job completion.
type Sink interface {
	Append(ctx context.Context, jobID string, entry models.LogEntry) error
	Read(ctx context.Context, jobID string) ([]models.LogEntry, error)
	Clear(ctx context.Context, jobID string) error
}

// RedisSink stores each job's log as a Redis list with a sliding retention
// TTL refreshed on every append.
type RedisSink struct {
	redis     *redisclient.Client
	retention time.Duration
}

// NewRedisSink creates a Redis-backed log sink.
func NewRedisSink(client *redisclient.Client, retention time.Duration) *RedisSink {
	return &RedisSink{redis: client, retention: retention}
}

func logKey(jobID string) string {
	return logKeyPrefix + jobID
}

// Append adds one entry to the job's log stream.
func (s *RedisSink) Append(ctx context.Context, jobID string, entry models.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, logKey(jobID), string(raw))
	pipe.Expire(ctx, logKey(jobID), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Read returns the job's log entries oldest first.
func (s *RedisSink) Read(ctx context.Context, jobID string) ([]models.LogEntry, error) {
	raws, err := s.redis.LRange(ctx, logKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	entries := make([]models.LogEntry, 0, len(raws))
	for _, raw := range raws {
		var entry models.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// A corrupt line is skipped rather than poisoning the read.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear deletes the job's log stream.
func (s *RedisSink) Clear(ctx context.Context, jobID string) error {
	if err := s.redis.Del(ctx, logKey(jobID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// MemorySink is an in-process Sink for tests and local development.
type MemorySink struct {
	mu      sync.Mutex
	entries map[string][]models.LogEntry
}

// NewMemorySink creates an empty in-process log sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string][]models.LogEntry)}
}

// Append adds one entry to the job's log stream.
func (s *MemorySink) Append(ctx context.Context, jobID string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jobID] = append(s.entries[jobID], entry)
	return nil
}

// Read returns the job's log entries oldest first.
func (s *MemorySink) Read(ctx context.Context, jobID string) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LogEntry(nil), s.entries[jobID]...), nil
}

// Clear deletes the job's log stream.
func (s *MemorySink) Clear(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
	return nil
}
