package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

// JanitorConfig holds the queue maintenance loop configuration.
type JanitorConfig struct {
	// Interval is how often the janitor runs. Default: 5 seconds.
	Interval time.Duration

	// StaleClaimThreshold is the age after which a claimed task is assumed
	// to belong to a dead worker and is requeued. Must exceed the longest
	// job timeout budget. Default: 15 minutes.
	StaleClaimThreshold time.Duration

	// BatchSize is the maximum number of delayed tasks promoted per cycle.
	// Default: 100.
	BatchSize int
}

func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval:            5 * time.Second,
		StaleClaimThreshold: 15 * time.Minute,
		BatchSize:           100,
	}
}

// Janitor promotes due delayed tasks and reclaims tasks stuck on dead
// workers. Requeueing is safe: workers re-claim atomically and the monitor's
// terminal-state guards make replay harmless.
type Janitor struct {
	config JanitorConfig
	queue  *RedisQueue
	clock  func() time.Time
}

func NewJanitor(config JanitorConfig, q *RedisQueue) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorConfig().Interval
	}
	if config.StaleClaimThreshold <= 0 {
		config.StaleClaimThreshold = DefaultJanitorConfig().StaleClaimThreshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultJanitorConfig().BatchSize
	}
	return &Janitor{config: config, queue: q, clock: time.Now}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	log.Printf("janitor: started (interval=%s, stale_threshold=%s, batch=%d)",
		j.config.Interval, j.config.StaleClaimThreshold, j.config.BatchSize)

	j.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("janitor: stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

func (j *Janitor) runCycle(ctx context.Context) {
	if n, err := j.queue.PromoteDelayed(ctx, j.config.BatchSize); err != nil {
		log.Printf("janitor: promote error: %v", err)
	} else if n > 0 {
		log.Printf("janitor: promoted %d delayed tasks", n)
	}

	if n, err := j.reclaimStale(ctx); err != nil {
		log.Printf("janitor: reclaim error: %v", err)
	} else if n > 0 {
		log.Printf("janitor: reclaimed %d stale tasks", n)
	}
}

// reclaimStale requeues claimed tasks whose claim is older than the
// threshold.
func (j *Janitor) reclaimStale(ctx context.Context) (int, error) {
	q := j.queue
	ids, err := q.client.SMembers(ctx, q.activeKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("smembers: %w", err)
	}

	cutoff := j.clock().Add(-j.config.StaleClaimThreshold).UnixMilli()
	reclaimed := 0

	for _, id := range ids {
		if ctx.Err() != nil {
			return reclaimed, ctx.Err()
		}

		claimedAtStr, err := q.client.HGet(ctx, q.taskKey(id), q.claimField()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Hash gone; drop the dangling active member.
				q.client.SRem(ctx, q.activeKey(), id)
				continue
			}
			return reclaimed, fmt.Errorf("claimed_at: %w", err)
		}
		claimedAt, err := strconv.ParseInt(claimedAtStr, 10, 64)
		if err != nil || claimedAt > cutoff {
			continue
		}

		// SRem is the arbiter: only the instance that removes the member
		// requeues it.
		removed, err := q.client.SRem(ctx, q.activeKey(), id).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("srem: %w", err)
		}
		if removed == 0 {
			continue
		}

		task, ok, err := q.loadTask(ctx, id)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.taskKey(id), "state", string(domain.JobStatusPending))
		pipe.HDel(ctx, q.taskKey(id), q.claimField())
		pipe.LPush(ctx, q.readyKey(task.Priority), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, fmt.Errorf("requeue stale: %w", err)
		}

		log.Printf("janitor: requeued stale task=%s job=%s (claimed %s ago)",
			id, task.JobID, time.Duration(j.clock().UnixMilli()-claimedAt)*time.Millisecond)
		reclaimed++
	}

	return reclaimed, nil
}
