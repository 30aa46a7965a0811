package report

import (
	"context"
	"errors"
	"testing"
)

func TestResolve_FirstTierWins(t *testing.T) {
	value, source := resolve(context.Background(), []Tier[int]{
		{Name: "first", Fetch: func(ctx context.Context) (int, bool, error) { return 1, true, nil }},
		{Name: "second", Fetch: func(ctx context.Context) (int, bool, error) {
			t.Fatal("second tier should not run")
			return 0, false, nil
		}},
	})

	if value != 1 || source != "first" {
		t.Errorf("resolve = (%d, %q), want (1, first)", value, source)
	}
}

func TestResolve_EmptyTierFallsThrough(t *testing.T) {
	value, source := resolve(context.Background(), []Tier[int]{
		{Name: "rollup", Fetch: func(ctx context.Context) (int, bool, error) { return 0, false, nil }},
		{Name: "aggregates", Fetch: func(ctx context.Context) (int, bool, error) { return 7, true, nil }},
	})

	if value != 7 || source != "aggregates" {
		t.Errorf("resolve = (%d, %q), want (7, aggregates)", value, source)
	}
}

func TestResolve_ErrorTreatedAsEmpty(t *testing.T) {
	value, source := resolve(context.Background(), []Tier[int]{
		{Name: "flaky", Fetch: func(ctx context.Context) (int, bool, error) {
			return 0, false, errors.New("connection refused")
		}},
		{Name: "fallback", Fetch: func(ctx context.Context) (int, bool, error) { return 3, true, nil }},
	})

	if value != 3 || source != "fallback" {
		t.Errorf("resolve = (%d, %q), want (3, fallback)", value, source)
	}
}

func TestResolve_AllEmptyReturnsZero(t *testing.T) {
	value, source := resolve(context.Background(), []Tier[int]{
		{Name: "a", Fetch: func(ctx context.Context) (int, bool, error) { return 0, false, nil }},
		{Name: "b", Fetch: func(ctx context.Context) (int, bool, error) { return 0, false, nil }},
	})

	if value != 0 || source != "b" {
		t.Errorf("resolve = (%d, %q), want (0, b)", value, source)
	}
}
