package api

import (
	"testing"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in      string
		want    domain.Priority
		wantErr bool
	}{
		{"", domain.PriorityNormal, false},
		{"normal", domain.PriorityNormal, false},
		{"critical", domain.PriorityCritical, false},
		{"high", domain.PriorityHigh, false},
		{"low", domain.PriorityLow, false},
		{"urgent", 0, true},
	}
	for _, tc := range cases {
		got, err := parsePriority(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parsePriority(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parsePriority(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestJobFromRequest_CronAndDelayExclusive(t *testing.T) {
	_, err := jobFromRequest(CreateJobRequest{
		Type:           "daily_summary",
		CronExpression: "0 7 * * *",
		DelaySeconds:   30,
	})
	if err == nil {
		t.Fatal("expected error for cron plus delay")
	}
}

func TestJobFromRequest_NegativeDelayRejected(t *testing.T) {
	_, err := jobFromRequest(CreateJobRequest{Type: "cleanup", DelaySeconds: -1})
	if err == nil {
		t.Fatal("expected error for negative delay")
	}
}

func TestAlertFromRequest_Thresholds(t *testing.T) {
	jobID := uuid.New()

	_, err := alertFromRequest(jobID, CreateAlertRequest{
		Type:     "consecutive_failures",
		Channels: []string{"webhook"}, WebhookURL: "https://hooks.example",
	})
	if err == nil {
		t.Fatal("consecutive_failures without threshold must be rejected")
	}

	_, err = alertFromRequest(jobID, CreateAlertRequest{
		Type: "slow_execution", Threshold: 1,
		Channels: []string{"webhook"}, WebhookURL: "https://hooks.example",
	})
	if err == nil {
		t.Fatal("slow_execution with multiplier <= 1 must be rejected")
	}

	alert, err := alertFromRequest(jobID, CreateAlertRequest{
		Type: "slow_execution", Threshold: 2.5,
		Channels: []string{"webhook"}, WebhookURL: "https://hooks.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	if alert.Threshold != 2.5 || !alert.Enabled {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestAlertFromRequest_UnknownChannel(t *testing.T) {
	_, err := alertFromRequest(uuid.New(), CreateAlertRequest{
		Type: "failure", Channels: []string{"pager"},
	})
	if err == nil {
		t.Fatal("unknown channel must be rejected")
	}
}
