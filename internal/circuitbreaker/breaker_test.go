package circuitbreaker

import (
	"testing"
	"time"
)

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func TestAllow_UnknownDestination(t *testing.T) {
	b := New(3, 5*time.Second)
	if err := b.Allow("https://hooks.example/alerts"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold(t *testing.T) {
	b := New(3, 5*time.Second)
	dest := "https://hooks.example/alerts"
	b.RecordFailure(dest)
	b.RecordFailure(dest)
	if err := b.Allow(dest); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_OpensAtThreshold(t *testing.T) {
	b := New(3, 5*time.Second)
	dest := "https://hooks.example/alerts"
	for i := 0; i < 3; i++ {
		b.RecordFailure(dest)
	}
	if err := b.Allow(dest); err == nil {
		t.Fatal("expected ErrOpen, got nil")
	}
}

func TestAllow_CooldownAdmitsSingleProbe(t *testing.T) {
	now := time.Now()
	b := New(3, time.Minute)
	b.clock = fixedClock(&now)
	dest := "smtp.backroomleeds.example:587"
	for i := 0; i < 3; i++ {
		b.RecordFailure(dest)
	}

	now = now.Add(2 * time.Minute)
	if err := b.Allow(dest); err != nil {
		t.Fatalf("expected probe admitted after cooldown, got %v", err)
	}
	if err := b.Allow(dest); err == nil {
		t.Fatal("expected ErrOpen while probe is in flight")
	}
}

func TestRecordSuccess_ClosesCircuit(t *testing.T) {
	now := time.Now()
	b := New(3, time.Minute)
	b.clock = fixedClock(&now)
	dest := "https://hooks.example/alerts"
	for i := 0; i < 3; i++ {
		b.RecordFailure(dest)
	}

	now = now.Add(2 * time.Minute)
	b.Allow(dest)
	b.RecordSuccess(dest)
	if err := b.Allow(dest); err != nil {
		t.Fatalf("expected closed after successful probe, got %v", err)
	}
}

func TestRecordFailure_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := New(3, time.Minute)
	b.clock = fixedClock(&now)
	dest := "https://hooks.example/alerts"
	for i := 0; i < 3; i++ {
		b.RecordFailure(dest)
	}

	now = now.Add(2 * time.Minute)
	b.Allow(dest)
	b.RecordFailure(dest)
	if err := b.Allow(dest); err == nil {
		t.Fatal("expected ErrOpen after failed probe")
	}
}

func TestDestinationsAreIndependent(t *testing.T) {
	b := New(2, 5*time.Second)
	b.RecordFailure("https://a.example/hook")
	b.RecordFailure("https://a.example/hook")
	if err := b.Allow("https://a.example/hook"); err == nil {
		t.Fatal("expected first destination open")
	}
	if err := b.Allow("https://b.example/hook"); err != nil {
		t.Fatalf("expected second destination unaffected, got %v", err)
	}
}
