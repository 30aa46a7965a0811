package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/domain"
)

func TestIsDuplicateKeyError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New(`pq: duplicate key value violates unique constraint "report_generations_type_period_key"`), true},
		{errors.New("ERROR: duplicate key value (SQLSTATE 23505)"), true},
		{errors.New("pq: unique constraint violated"), true},
		{errors.New("pq: connection refused"), false},
		{errors.New("context deadline exceeded"), false},
	}
	for _, tc := range cases {
		if got := isDuplicateKeyError(tc.err); got != tc.want {
			t.Errorf("isDuplicateKeyError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

// TestAggregateDay_CountsOnlyRealizedBookings pins the aggregation query to
// the confirmed/completed status set so the materialized rows agree with the
// live fallback tier.
func TestAggregateDay_CountsOnlyRealizedBookings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := New(sqlx.NewDb(db, "postgres"))

	mock.ExpectQuery(`status IN \('confirmed', 'completed'\)`).
		WithArgs("2026-08-30", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"bookings"}).AddRow(10))

	day := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	got, err := s.AggregateDay(context.Background(), day)
	if err != nil {
		t.Fatalf("AggregateDay error: %v", err)
	}
	if got != 10 {
		t.Errorf("bookings = %d, want 10", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAlertRow_ToDomain(t *testing.T) {
	triggered := time.Date(2026, 8, 30, 7, 0, 0, 0, time.UTC)
	row := alertRow{
		ID:              uuid.New(),
		JobID:           uuid.New(),
		Type:            "consecutive_failures",
		Threshold:       3,
		Channels:        pq.StringArray{"email", "webhook"},
		Recipients:      pq.StringArray{"ops@backroomleeds.example"},
		WebhookURL:      "https://hooks.example/alerts",
		Enabled:         true,
		LastTriggeredAt: &triggered,
	}

	alert := row.toDomain()
	if alert.Type != domain.AlertTypeConsecutiveFailures {
		t.Fatalf("type = %s", alert.Type)
	}
	if len(alert.Channels) != 2 || alert.Channels[0] != domain.AlertChannelEmail || alert.Channels[1] != domain.AlertChannelWebhook {
		t.Fatalf("channels = %v", alert.Channels)
	}
	if len(alert.Recipients) != 1 || alert.Recipients[0] != "ops@backroomleeds.example" {
		t.Fatalf("recipients = %v", alert.Recipients)
	}
	if alert.LastTriggeredAt == nil || !alert.LastTriggeredAt.Equal(triggered) {
		t.Fatalf("last triggered = %v", alert.LastTriggeredAt)
	}
}
