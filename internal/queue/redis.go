package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// retryBackoff is indexed by attempt number (attempt 1 retries immediately
// appear at index 1). The last entry caps all further attempts.
var retryBackoff = []time.Duration{
	0,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// backoffFor returns the delay before re-enqueueing after the given failed
// attempt.
func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[attempt]
}

// completedTaskTTL keeps finished task hashes around long enough for status
// queries before Redis expires them.
const completedTaskTTL = 24 * time.Hour

// priorityOrder is the BRPOP key order: lower Priority value is served first.
var priorityOrder = []domain.Priority{
	domain.PriorityCritical,
	domain.PriorityHigh,
	domain.PriorityNormal,
	domain.PriorityLow,
}

type RedisQueue struct {
	client *redis.Client
	prefix string
	clock  func() time.Time
}

func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "backhouse"
	}
	return &RedisQueue{client: client, prefix: prefix, clock: time.Now}
}

func (q *RedisQueue) readyKey(p domain.Priority) string {
	return fmt.Sprintf("%s:ready:%s", q.prefix, p)
}

func (q *RedisQueue) readyKeys() []string {
	keys := make([]string, len(priorityOrder))
	for i, p := range priorityOrder {
		keys[i] = q.readyKey(p)
	}
	return keys
}

func (q *RedisQueue) taskKey(id string) string  { return q.prefix + ":task:" + id }
func (q *RedisQueue) delayedKey() string        { return q.prefix + ":delayed" }
func (q *RedisQueue) activeKey() string         { return q.prefix + ":active" }
func (q *RedisQueue) pausedKey() string         { return q.prefix + ":paused" }
func (q *RedisQueue) completedCounter() string  { return q.prefix + ":completed" }
func (q *RedisQueue) failedCounter() string     { return q.prefix + ":failed" }
func (q *RedisQueue) onceKey(key string) string { return q.prefix + ":once:" + key }
func (q *RedisQueue) claimField() string        { return "claimed_at" }

// jobTasksKey indexes live task ids per job so RemoveJob can purge them.
func (q *RedisQueue) jobTasksKey(jobID string) string {
	return q.prefix + ":job:" + jobID + ":tasks"
}

// Enqueue stores the task hash and places it on a ready list, or in the
// delayed set when delay > 0.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	if delay < 0 {
		return domain.NewValidationError("delay must be >= 0")
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = q.clock().UTC()
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskKey(task.ID), "body", body, "state", string(domain.JobStatusPending))
	pipe.SAdd(ctx, q.jobTasksKey(task.JobID.String()), task.ID)
	if delay > 0 {
		readyAt := q.clock().Add(delay)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt.UnixMilli()), Member: task.ID})
	} else {
		pipe.LPush(ctx, q.readyKey(task.Priority), task.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Dequeue claims the next ready task, preferring lower priority values.
// Tasks belonging to a paused job are marked cancelled and skipped.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Task, error) {
	deadline := q.clock().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		res, err := q.client.BRPop(ctx, remaining, q.readyKeys()...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("brpop: %w", err)
		}
		// res is [key, member]
		id := res[1]

		task, ok, err := q.loadTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Removed while queued. Claim the next one.
			continue
		}

		paused, err := q.client.SIsMember(ctx, q.pausedKey(), task.JobID.String()).Result()
		if err != nil {
			return nil, fmt.Errorf("paused check: %w", err)
		}
		if paused {
			q.client.HSet(ctx, q.taskKey(id), "state", string(domain.JobStatusCancelled))
			continue
		}

		now := q.clock().UTC()
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.taskKey(id), "state", string(domain.JobStatusRunning), q.claimField(), now.UnixMilli())
		pipe.SAdd(ctx, q.activeKey(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}
		return task, nil
	}
}

func (q *RedisQueue) loadTask(ctx context.Context, id string) (*Task, bool, error) {
	body, err := q.client.HGet(ctx, q.taskKey(id), "body").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load task: %w", err)
	}
	var task Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return nil, false, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return &task, true, nil
}

// Complete marks the task done and lets its hash age out.
func (q *RedisQueue) Complete(ctx context.Context, task Task) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskKey(task.ID), "state", string(domain.JobStatusCompleted))
	pipe.SRem(ctx, q.activeKey(), task.ID)
	pipe.SRem(ctx, q.jobTasksKey(task.JobID.String()), task.ID)
	pipe.Incr(ctx, q.completedCounter())
	pipe.Expire(ctx, q.taskKey(task.ID), completedTaskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// Fail re-enqueues with backoff when attempts remain, otherwise marks the
// task failed terminally. Attempt numbers executions starting at 1, so a
// task retries while the next attempt is still within MaxAttempts.
func (q *RedisQueue) Fail(ctx context.Context, task Task, reason string) (bool, error) {
	task.Attempt++

	if task.Attempt <= task.MaxAttempts {
		body, err := json.Marshal(task)
		if err != nil {
			return false, fmt.Errorf("marshal task: %w", err)
		}
		backoff := backoffFor(task.Attempt)
		readyAt := q.clock().Add(backoff)

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.taskKey(task.ID), "body", body, "state", string(domain.JobStatusPending), "last_error", reason)
		pipe.SRem(ctx, q.activeKey(), task.ID)
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt.UnixMilli()), Member: task.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("requeue: %w", err)
		}
		log.Printf("queue: task=%s attempt=%d/%d requeued backoff=%s", task.ID, task.Attempt, task.MaxAttempts, backoff)
		return true, nil
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.taskKey(task.ID), "state", string(domain.JobStatusFailed), "last_error", reason)
	pipe.SRem(ctx, q.activeKey(), task.ID)
	pipe.SRem(ctx, q.jobTasksKey(task.JobID.String()), task.ID)
	pipe.Incr(ctx, q.failedCounter())
	pipe.Expire(ctx, q.taskKey(task.ID), completedTaskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("fail: %w", err)
	}
	return false, nil
}

func (q *RedisQueue) PauseJob(ctx context.Context, jobID uuid.UUID) error {
	return q.client.SAdd(ctx, q.pausedKey(), jobID.String()).Err()
}

func (q *RedisQueue) ResumeJob(ctx context.Context, jobID uuid.UUID) error {
	return q.client.SRem(ctx, q.pausedKey(), jobID.String()).Err()
}

// RemoveJob drops every trace of the job: queued and delayed tasks found
// through the per-job index, the paused flag and the index itself. It is
// idempotent: removing an unknown job is a no-op, not an error.
func (q *RedisQueue) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	job := jobID.String()
	taskIDs, err := q.client.SMembers(ctx, q.jobTasksKey(job)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("remove: list tasks: %w", err)
	}

	pipe := q.client.TxPipeline()
	for _, id := range taskIDs {
		for _, p := range priorityOrder {
			pipe.LRem(ctx, q.readyKey(p), 0, id)
		}
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.SRem(ctx, q.activeKey(), id)
		pipe.Del(ctx, q.taskKey(id))
	}
	pipe.SRem(ctx, q.pausedKey(), job)
	pipe.Del(ctx, q.jobTasksKey(job))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// TaskState maps queue state to the ScheduledJob status enum. The second
// return is false when the id is unknown. A still-queued task of a paused
// job reports cancelled without waiting for a worker to dequeue and skip it.
func (q *RedisQueue) TaskState(ctx context.Context, id string) (domain.JobStatus, bool, error) {
	state, err := q.client.HGet(ctx, q.taskKey(id), "state").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("task state: %w", err)
	}

	if domain.JobStatus(state) == domain.JobStatusPending {
		task, ok, err := q.loadTask(ctx, id)
		if err != nil {
			return "", false, err
		}
		if ok {
			paused, err := q.client.SIsMember(ctx, q.pausedKey(), task.JobID.String()).Result()
			if err != nil {
				return "", false, fmt.Errorf("paused check: %w", err)
			}
			if paused {
				return domain.JobStatusCancelled, true, nil
			}
		}
	}
	return domain.JobStatus(state), true, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := make([]*redis.IntCmd, len(priorityOrder))
	for i, p := range priorityOrder {
		ready[i] = pipe.LLen(ctx, q.readyKey(p))
	}
	delayed := pipe.ZCard(ctx, q.delayedKey())
	running := pipe.SCard(ctx, q.activeKey())
	paused := pipe.SCard(ctx, q.pausedKey())
	completed := pipe.Get(ctx, q.completedCounter())
	failed := pipe.Get(ctx, q.failedCounter())

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	var s Stats
	for _, cmd := range ready {
		s.Pending += cmd.Val()
	}
	s.Delayed = delayed.Val()
	s.Running = running.Val()
	s.Paused = paused.Val()
	s.Completed, _ = completed.Int64()
	s.Failed, _ = failed.Int64()
	return s, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) AcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := q.client.SetNX(ctx, q.onceKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

// PromoteDelayed moves due delayed tasks onto their ready lists. ZRem is the
// arbiter under concurrency: only the caller that removes the member pushes.
func (q *RedisQueue) PromoteDelayed(ctx context.Context, batch int) (int, error) {
	now := q.clock().UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: int64(batch),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			continue // another instance won
		}
		task, ok, err := q.loadTask(ctx, id)
		if err != nil {
			return promoted, err
		}
		if !ok {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(task.Priority), id).Err(); err != nil {
			return promoted, fmt.Errorf("lpush: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

var _ Queue = (*RedisQueue)(nil)
