// Package worker runs the task-consuming pool. Each worker goroutine pulls
// from the shared queue, dispatches by job type, and reports the outcome to
// the queue, the monitor and the metrics sink.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/metrics"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/scheduler"
)

const (
	defaultConcurrency = 3
	dequeueErrorPause  = time.Second
	depthSampleEvery   = 15 * time.Second
)

type Pool struct {
	queue       queue.Queue
	registry    *scheduler.Registry
	monitor     *monitor.Monitor
	sink        metrics.Sink
	concurrency int
	dequeueWait time.Duration
	clock       func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewPool(q queue.Queue, reg *scheduler.Registry, mon *monitor.Monitor, sink metrics.Sink, concurrency int, dequeueWait time.Duration) *Pool {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	return &Pool{
		queue:       q,
		registry:    reg,
		monitor:     mon,
		sink:        sink,
		concurrency: concurrency,
		dequeueWait: dequeueWait,
		clock:       time.Now,
	}
}

// Alive reports whether the pool's workers are running.
func (p *Pool) Alive() bool {
	return p.running.Load()
}

// Run blocks until ctx is cancelled and every in-flight task has finished.
// Tasks claimed before cancellation run to completion under their own
// timeout budget; nothing is abandoned mid-execution.
func (p *Pool) Run(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)

	log.Printf("worker: pool started concurrency=%d", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			p.loop(ctx, n)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sampleDepth(ctx)
	}()

	p.wg.Wait()
	log.Printf("worker: pool drained")
}

func (p *Pool) loop(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.Dequeue(ctx, p.dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker[%d]: dequeue failed: %v", n, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}
		if task == nil {
			continue
		}

		p.process(ctx, *task)
	}
}

// process executes one claimed task end to end. The execution context is
// detached from the pool context so shutdown drains the task instead of
// killing it.
func (p *Pool) process(ctx context.Context, task queue.Task) {
	// Bookkeeping survives pool shutdown: a drained task must still be
	// completed or failed in the queue and recorded in history.
	book := context.WithoutCancel(ctx)

	handler, ok := p.registry.Resolve(task.Type)
	if !ok {
		p.failTerminal(book, task, "no handler registered for job type "+string(task.Type))
		return
	}

	execCtx := book
	if budget := task.Timeout(); budget > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, budget)
		defer cancel()
	}

	start := p.clock()
	result, err := handler.Execute(execCtx, task)
	elapsed := p.clock().Sub(start)

	if err != nil {
		p.handleFailure(book, task, start, elapsed, err)
		return
	}

	if err := p.queue.Complete(book, task); err != nil {
		log.Printf("worker: complete task=%s failed: %v", task.ID, err)
	}
	p.record(book, task, start, elapsed, domain.ExecutionStatusCompleted, "", result)
	p.sink.TaskProcessed(task.Type, metrics.OutcomeCompleted, elapsed)
	log.Printf("worker: task=%s name=%s completed in %s", task.ID, task.Name, elapsed.Round(time.Millisecond))
}

func (p *Pool) handleFailure(ctx context.Context, task queue.Task, start time.Time, elapsed time.Duration, execErr error) {
	reason := execErr.Error()

	var jobErr *domain.JobError
	retryable := true
	if errors.As(execErr, &jobErr) {
		retryable = jobErr.Retryable()
	}

	var retried bool
	var err error
	if retryable {
		retried, err = p.queue.Fail(ctx, task, reason)
	} else {
		err = p.terminalFail(ctx, task, reason)
	}
	if err != nil {
		log.Printf("worker: fail task=%s failed: %v", task.ID, err)
	}

	p.record(ctx, task, start, elapsed, domain.ExecutionStatusFailed, reason, domain.ExecutionResult{})
	p.sink.TaskProcessed(task.Type, metrics.OutcomeFailed, elapsed)
	if retried {
		p.sink.TaskRetried(task.Type)
	}
	log.Printf("worker: task=%s name=%s attempt=%d failed (retried=%v): %v", task.ID, task.Name, task.Attempt, retried, execErr)
}

func (p *Pool) failTerminal(ctx context.Context, task queue.Task, reason string) {
	if err := p.terminalFail(ctx, task, reason); err != nil {
		log.Printf("worker: fail task=%s failed: %v", task.ID, err)
	}
	start := p.clock()
	p.record(ctx, task, start, 0, domain.ExecutionStatusFailed, reason, domain.ExecutionResult{})
	p.sink.TaskProcessed(task.Type, metrics.OutcomeFailed, 0)
	log.Printf("worker: task=%s name=%s rejected: %s", task.ID, task.Name, reason)
}

// terminalFail exhausts the attempt budget so the queue marks the task
// failed instead of scheduling a retry.
func (p *Pool) terminalFail(ctx context.Context, task queue.Task, reason string) error {
	task.Attempt = task.MaxAttempts
	_, err := p.queue.Fail(ctx, task, reason)
	return err
}

func (p *Pool) record(ctx context.Context, task queue.Task, start time.Time, elapsed time.Duration, status domain.ExecutionStatus, errMsg string, result domain.ExecutionResult) {
	if p.monitor == nil {
		return
	}

	var resultJSON []byte
	if result.Result != nil {
		resultJSON, _ = json.Marshal(result.Result)
	}

	completedAt := start.Add(elapsed).UTC()
	p.monitor.RecordExecution(ctx, domain.ExecutionRecord{
		ID:               uuid.New(),
		JobID:            task.JobID,
		ExecutionID:      task.ID,
		JobName:          task.Name,
		JobType:          task.Type,
		Status:           status,
		StartedAt:        start.UTC(),
		CompletedAt:      &completedAt,
		ExecutionTimeMs:  elapsed.Milliseconds(),
		Attempt:          task.Attempt,
		ErrorMessage:     errMsg,
		Result:           resultJSON,
		RecordsProcessed: result.RecordsProcessed,
	})
}

// sampleDepth publishes queue depth gauges until ctx is cancelled.
func (p *Pool) sampleDepth(ctx context.Context) {
	ticker := time.NewTicker(depthSampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := p.queue.Stats(ctx)
			if err != nil {
				continue
			}
			p.sink.QueueDepth(stats)
		}
	}
}
