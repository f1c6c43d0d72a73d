package session_test

import (
	"testing"
	"time"

	"github.com/goquran/tilawa/internal/config"
	"github.com/goquran/tilawa/internal/session"
)

func TestComputeRate(t *testing.T) {
	t.Parallel()
	bands := config.DefaultTuning().RateBands

	tests := []struct {
		name     string
		words    int
		elapsed  time.Duration
		wantRate float64
		wantOK   bool
	}{
		{"no words", 0, time.Minute, 0, false},
		{"sample too short", 50, 500 * time.Millisecond, 0, false},
		{"very fast pace", 200, time.Minute, 1.5, true},
		{"fast pace", 100, time.Minute, 1.5, true},
		{"brisk pace", 85, time.Minute, 1.25, true},
		{"exactly on band edge", 90, time.Minute, 1.25, true},
		{"normal pace", 70, time.Minute, 1.0, true},
		{"slow pace", 30, time.Minute, 0.85, true},
		{"short but valid sample", 4, 2 * time.Second, 1.5, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rate, ok := session.ComputeRate(tc.words, tc.elapsed, bands)
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tc.wantOK)
			}
			if ok && rate != tc.wantRate {
				t.Errorf("rate: got %v, want %v", rate, tc.wantRate)
			}
		})
	}
}

func TestComputeRate_NoBands(t *testing.T) {
	t.Parallel()
	if _, ok := session.ComputeRate(100, time.Minute, nil); ok {
		t.Error("expected ok=false with no bands configured")
	}
}
