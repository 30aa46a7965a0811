package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/queue"
)

// Handler executes one task of a given job type. Handlers signal expected
// failures through domain.JobError so the worker can decide retryability.
type Handler interface {
	Execute(ctx context.Context, task queue.Task) (domain.ExecutionResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task queue.Task) (domain.ExecutionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, task queue.Task) (domain.ExecutionResult, error) {
	return f(ctx, task)
}

// Registry maps job types to their handlers. Registration happens at
// startup; Resolve is called concurrently by workers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobType]Handler)}
}

// Register binds a handler to a job type. Unknown types and double
// registration are rejected.
func (r *Registry) Register(t domain.JobType, h Handler) error {
	if !t.Valid() {
		return fmt.Errorf("register handler: unknown job type %q", t)
	}
	if h == nil {
		return fmt.Errorf("register handler: nil handler for %q", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("register handler: %q already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Resolve returns the handler for t, if any.
func (r *Registry) Resolve(t domain.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered job types, unordered.
func (r *Registry) Types() []domain.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
