package cron

import (
	"testing"
	"time"
)

func TestParser_ValidExpressions(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		expr string
		tz   string
	}{
		{"every minute", "* * * * *", "UTC"},
		{"daily at 7am", "0 7 * * *", "Europe/London"},
		{"weekly monday 8am", "0 8 * * 1", "Europe/London"},
		{"nightly half past three", "30 3 * * *", "UTC"},
		{"sunday cleanup", "0 4 * * 0", "America/New_York"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse(tt.expr, tt.tz); err != nil {
				t.Errorf("Parse(%q, %q) error: %v", tt.expr, tt.tz, err)
			}
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		expr string
		tz   string
	}{
		{"empty", "", "UTC"},
		{"too few fields", "* * *", "UTC"},
		{"six fields", "0 * * * * *", "UTC"},
		{"out of range minute", "61 * * * *", "UTC"},
		{"bad timezone", "* * * * *", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Validate(tt.expr, tt.tz); err == nil {
				t.Errorf("Validate(%q, %q) = nil, want error", tt.expr, tt.tz)
			}
		})
	}
}

func TestSchedule_NextRespectsTimezone(t *testing.T) {
	p := NewParser()

	// 07:00 daily in London. From 05:00 UTC in winter (GMT), next fire is
	// 07:00 UTC; in summer (BST) it is 06:00 UTC.
	sched, err := p.Parse("0 7 * * *", "Europe/London")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	winter := time.Date(2026, 1, 15, 5, 0, 0, 0, time.UTC)
	if got := sched.Next(winter); !got.Equal(time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("winter Next = %s, want 07:00 UTC", got.UTC())
	}

	summer := time.Date(2026, 7, 15, 5, 0, 0, 0, time.UTC)
	if got := sched.Next(summer); !got.Equal(time.Date(2026, 7, 15, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("summer Next = %s, want 06:00 UTC", got.UTC())
	}
}

func TestSchedule_NextIsStrictlyAfter(t *testing.T) {
	p := NewParser()

	sched, err := p.Parse("* * * * *", "UTC")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	next := sched.Next(at)
	if !next.After(at) {
		t.Errorf("Next(%s) = %s, not strictly after", at, next)
	}
}
