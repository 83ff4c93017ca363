package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/redisclient"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "jobs:item:"
	waitingKey   = "jobs:waiting"
	delayedKey   = "jobs:delayed"
	indexPrefix  = "jobs:index:"
	promoteBatch = 100
	leaseTimeFmt = time.RFC3339Nano
)

// leaseScript pops the oldest waiting job id, marks the job active and moves
// it between state indexes, all in one atomic step. Two concurrent callers
// can never receive the same job.
const leaseScript = `
local id = redis.call('LPOP', KEYS[1])
if not id then
  return false
end
local key = ARGV[1] .. id
local raw = redis.call('GET', key)
if not raw then
  redis.call('SREM', KEYS[2], id)
  return false
end
local job = cjson.decode(raw)
job['state'] = 'active'
job['processed_at'] = ARGV[2]
local encoded = cjson.encode(job)
redis.call('SET', key, encoded)
redis.call('SREM', KEYS[2], id)
redis.call('SADD', KEYS[3], id)
return encoded
`

// promoteScript moves delayed job ids whose ready time has passed back onto
// the waiting list.
const promoteScript = `
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('RPUSH', KEYS[2], id)
end
return #due
`

var jobStates = []models.JobState{
	models.JobStateWaiting,
	models.JobStateActive,
	models.JobStateCompleted,
	models.JobStateFailed,
}

// RedisStore is the production Store backed by the shared Redis instance.
type RedisStore struct {
	redis *redisclient.Client
}

// NewRedisStore creates a Redis-backed queue store.
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func indexKey(state models.JobState) string {
	return indexPrefix + string(state)
}

// queueSave adds the record upsert and state reindex commands to pipe.
func queueSave(ctx context.Context, pipe redis.Pipeliner, job *models.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	pipe.Set(ctx, jobKey(job.ID), string(raw), 0)
	for _, state := range jobStates {
		if state == job.State {
			pipe.SAdd(ctx, indexKey(state), job.ID)
		} else {
			pipe.SRem(ctx, indexKey(state), job.ID)
		}
	}
	return nil
}

// SaveJob upserts the job record and reindexes it under its current state.
func (s *RedisStore) SaveJob(ctx context.Context, job *models.Job) error {
	pipe := s.redis.TxPipeline()
	if err := queueSave(ctx, pipe, job); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	raw, err := s.redis.Get(ctx, jobKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Lease atomically claims the oldest waiting job.
func (s *RedisStore) Lease(ctx context.Context) (*models.Job, error) {
	keys := []string{waitingKey, indexKey(models.JobStateWaiting), indexKey(models.JobStateActive)}
	res, err := s.redis.Eval(ctx, leaseScript, keys, jobKeyPrefix, time.Now().Format(leaseTimeFmt)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	raw, ok := res.(string)
	if !ok {
		return nil, nil
	}
	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leased job: %w", err)
	}
	return &job, nil
}

// EnqueueWaiting saves the job and appends it to the waiting list in one
// transaction. Both land or neither does, so a waiting job is always
// reachable by Lease.
func (s *RedisStore) EnqueueWaiting(ctx context.Context, job *models.Job) error {
	pipe := s.redis.TxPipeline()
	if err := queueSave(ctx, pipe, job); err != nil {
		return err
	}
	pipe.RPush(ctx, waitingKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// ScheduleRetry saves the job and schedules it to re-enter the waiting list
// at readyAt, in one transaction.
func (s *RedisStore) ScheduleRetry(ctx context.Context, job *models.Job, readyAt time.Time) error {
	pipe := s.redis.TxPipeline()
	if err := queueSave(ctx, pipe, job); err != nil {
		return err
	}
	pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// PromoteDue moves due delayed jobs back to the waiting list.
func (s *RedisStore) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	keys := []string{delayedKey, waitingKey}
	res, err := s.redis.Eval(ctx, promoteScript, keys, now.UnixMilli(), promoteBatch).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	n, _ := res.(int64)
	return int(n), nil
}

// ListIDs returns all job ids in the given state, or all ids when state is
// empty.
func (s *RedisStore) ListIDs(ctx context.Context, state models.JobState) ([]string, error) {
	states := jobStates
	if state != "" {
		states = []models.JobState{state}
	}

	var ids []string
	for _, st := range states {
		members, err := s.redis.SMembers(ctx, indexKey(st)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		ids = append(ids, members...)
	}
	return ids, nil
}

// DeleteJob removes the job record and every queue reference to it.
func (s *RedisStore) DeleteJob(ctx context.Context, id string) error {
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.LRem(ctx, waitingKey, 0, id)
	pipe.ZRem(ctx, delayedKey, id)
	for _, state := range jobStates {
		pipe.SRem(ctx, indexKey(state), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// CountByState returns job counts grouped by state.
func (s *RedisStore) CountByState(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	for _, st := range jobStates {
		n, err := s.redis.SCard(ctx, indexKey(st)).Result()
		if err != nil {
			return stats, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		switch st {
		case models.JobStateWaiting:
			stats.Waiting = n
		case models.JobStateActive:
			stats.Active = n
		case models.JobStateCompleted:
			stats.Completed = n
		case models.JobStateFailed:
			stats.Failed = n
		}
	}
	return stats, nil
}
