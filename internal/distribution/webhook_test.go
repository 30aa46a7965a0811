package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/circuitbreaker"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
)

func TestWebhookSender_EnvelopeShape(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSender(nil)
	s.clock = func() time.Time { return time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC) }

	alert := monitor.AlertNotification{
		JobID:     uuid.New(),
		JobName:   "daily_summary",
		AlertType: domain.AlertTypeFailure,
	}
	if err := s.Send(context.Background(), srv.URL, "job_alert", alert); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}

	var env struct {
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(gotBody, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "job_alert" {
		t.Fatalf("type = %q, want job_alert", env.Type)
	}
	if env.Timestamp != "2026-08-31T07:00:00Z" {
		t.Fatalf("timestamp = %q", env.Timestamp)
	}

	var data monitor.AlertNotification
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.JobName != "daily_summary" {
		t.Fatalf("data.jobName = %q", data.JobName)
	}
}

func TestWebhookSender_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(nil)
	if err := s.Send(context.Background(), srv.URL, "job_alert", nil); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestWebhookSender_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebhookSender(circuitbreaker.New(2, time.Minute))
	for i := 0; i < 2; i++ {
		if err := s.Send(context.Background(), srv.URL, "job_alert", nil); err == nil {
			t.Fatal("expected delivery failure")
		}
	}

	err := s.Send(context.Background(), srv.URL, "job_alert", nil)
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestMailer_BuildsSingleTransaction(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	m := NewMailer("smtp.example:587", "reports@backroomleeds.example", nil)
	m.send = func(addr, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.Send(context.Background(), []string{"mgmt@backroomleeds.example", "ops@backroomleeds.example"}, "Daily summary", "All good.")
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example:587" || gotFrom != "reports@backroomleeds.example" {
		t.Fatalf("addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 2 {
		t.Fatalf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"Subject: Daily summary", "Content-Type: text/plain", "All good."} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestMailer_NoRecipientsIsNoop(t *testing.T) {
	m := NewMailer("smtp.example:587", "reports@backroomleeds.example", nil)
	m.send = func(string, string, []string, []byte) error {
		t.Fatal("send must not be called without recipients")
		return nil
	}
	if err := m.Send(context.Background(), nil, "x", "y"); err != nil {
		t.Fatal(err)
	}
}

func TestDistributor_ScheduleSendEmailsPayload(t *testing.T) {
	var gotTo []string
	var gotMsg []byte
	m := NewMailer("smtp.example:587", "reports@backroomleeds.example", nil)
	m.send = func(_, _ string, to []string, msg []byte) error {
		gotTo, gotMsg = to, msg
		return nil
	}

	d := NewDistributor(m, nil)
	err := d.ScheduleSend(context.Background(), uuid.New(), []string{"mgmt@backroomleeds.example"},
		map[string]any{"totalRevenue": 500})
	if err != nil {
		t.Fatal(err)
	}
	if len(gotTo) != 1 {
		t.Fatalf("to = %v", gotTo)
	}
	if !strings.Contains(string(gotMsg), `"totalRevenue": 500`) {
		t.Fatalf("payload not embedded:\n%s", gotMsg)
	}
}
