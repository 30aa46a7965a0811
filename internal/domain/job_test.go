package domain

import "testing"

func TestJobType_Valid(t *testing.T) {
	tests := []struct {
		typ  JobType
		want bool
	}{
		{JobTypeDailySummary, true},
		{JobTypeWeeklySummary, true},
		{JobTypeAggregation, true},
		{JobTypeCleanup, true},
		{JobType("reindex"), false},
		{JobType(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Valid(); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestPriority_String(t *testing.T) {
	tests := []struct {
		p    Priority
		want string
	}{
		{PriorityCritical, "critical"},
		{PriorityHigh, "high"},
		{PriorityNormal, "normal"},
		{PriorityLow, "low"},
		{Priority(42), "normal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("Priority(%d).String() = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}

func TestExecutionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status ExecutionStatus
		want   bool
	}{
		{ExecutionStatusPending, false},
		{ExecutionStatusRunning, false},
		{ExecutionStatusCompleted, true},
		{ExecutionStatusFailed, true},
		{ExecutionStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
