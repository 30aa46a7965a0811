// Package leaderelection gates singleton duties behind a Postgres advisory
// lock. Only the elected instance runs the recurring emitter and the queue
// janitor; followers keep retrying for the lock.
//
// The lock is session-scoped and lives as long as the dedicated database
// connection. There is no renewal: Postgres releases it server-side when the
// connection dies. The heartbeat ping only detects local connection death so
// the leader can stand down promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"log"
	"time"
)

type Elector struct {
	db        *sql.DB
	lockKey   int64
	retry     time.Duration // follower retry interval
	heartbeat time.Duration // leader connection ping interval
	onElected func(ctx context.Context)
	onDemoted func()
}

// New builds an elector. onElected runs in its own goroutine with a context
// that is cancelled on demotion; it should start the leader duties and
// return. onDemoted runs synchronously on leadership loss and must be
// idempotent.
func New(db *sql.DB, lockKey int64, retry, heartbeat time.Duration, onElected func(ctx context.Context), onDemoted func()) *Elector {
	return &Elector{
		db:        db,
		lockKey:   lockKey,
		retry:     retry,
		heartbeat: heartbeat,
		onElected: onElected,
		onDemoted: onDemoted,
	}
}

// Run drives the election loop until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	log.Printf("leader: election loop started lock_key=%d retry=%s heartbeat=%s", e.lockKey, e.retry, e.heartbeat)

	for {
		if ctx.Err() != nil {
			log.Printf("leader: election loop stopped")
			return
		}

		if reason := e.campaign(ctx); reason != "" && ctx.Err() == nil {
			log.Printf("leader: leadership lost reason=%s, retrying in %s", reason, e.retry)
		}

		select {
		case <-ctx.Done():
			log.Printf("leader: election loop stopped")
			return
		case <-time.After(e.retry):
		}
	}
}

// campaign tries for the lock once and, on success, holds leadership until
// the connection dies or ctx is cancelled. Returns "" when the lock was not
// acquired, otherwise the reason leadership ended.
func (e *Elector) campaign(ctx context.Context) string {
	// Advisory locks are session-scoped, so leadership needs a dedicated
	// connection for its whole lifetime.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		log.Printf("leader: dedicated connection failed: %v", err)
		return ""
	}
	defer conn.Close()

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired); err != nil {
		log.Printf("leader: advisory lock query failed: %v", err)
		return ""
	}
	if !acquired {
		return ""
	}

	log.Printf("leader: acquired advisory lock %d", e.lockKey)

	leaderCtx, cancel := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.hold(ctx, conn)

	cancel()
	e.onDemoted()
	log.Printf("leader: released advisory lock %d", e.lockKey)
	return reason
}

func (e *Elector) hold(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				log.Printf("leader: heartbeat ping failed: %v", err)
				return "conn_lost"
			}
		}
	}
}
