// Package circuitbreaker tracks per-destination delivery health so a dead
// webhook endpoint or mail relay stops consuming send attempts.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit open for destination")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type destState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker is keyed by destination (webhook URL, SMTP host). After threshold
// consecutive failures the destination is cut off for cooldown; the first
// attempt after cooldown probes it half-open.
type Breaker struct {
	mu        sync.Mutex
	states    map[string]*destState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		states:    make(map[string]*destState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether a send to dest may proceed. While half-open, only
// the probing attempt is admitted; concurrent sends get ErrOpen.
func (b *Breaker) Allow(dest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[dest]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		if b.clock().Sub(s.openedAt) >= b.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrOpen
	case stateHalfOpen:
		return ErrOpen
	default:
		return nil
	}
}

// RecordSuccess closes the destination's circuit.
func (b *Breaker) RecordSuccess(dest string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[dest]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure counts a failed send and opens the circuit at the
// threshold. A half-open probe failing re-opens immediately.
func (b *Breaker) RecordFailure(dest string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[dest]
	if !ok {
		s = &destState{}
		b.states[dest] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold || s.state == stateHalfOpen {
		s.state = stateOpen
		s.openedAt = b.clock()
	}
}
