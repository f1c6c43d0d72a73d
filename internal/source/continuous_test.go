package source_test

import (
	"context"
	"testing"
	"time"

	"github.com/goquran/tilawa/internal/source"
)

func TestContinuous_DebouncesResults(t *testing.T) {
	t.Parallel()
	c := source.NewContinuous(30 * time.Millisecond)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	c.Push("بسم الله")
	c.Push("الرحمن")
	c.Push("الرحيم")

	select {
	case d := <-c.Deltas():
		if d.Text != "بسم الله الرحمن الرحيم" {
			t.Errorf("delta: got %q", d.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delta arrived")
	}

	// No second delta without further pushes.
	select {
	case d, ok := <-c.Deltas():
		if ok {
			t.Errorf("unexpected extra delta %q", d.Text)
		}
	case <-time.After(80 * time.Millisecond):
	}
}

func TestContinuous_SeparatePausesSeparateDeltas(t *testing.T) {
	t.Parallel()
	c := source.NewContinuous(10 * time.Millisecond)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	c.Push("الحمد لله")
	first := recvDelta(t, c)
	c.Push("رب العالمين")
	second := recvDelta(t, c)

	if first.Text != "الحمد لله" || second.Text != "رب العالمين" {
		t.Errorf("deltas: got %q, %q", first.Text, second.Text)
	}
}

func TestContinuous_IgnoresEmptyAndUnstarted(t *testing.T) {
	t.Parallel()
	c := source.NewContinuous(5 * time.Millisecond)

	c.Push("before start") // not started yet
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	c.Push("   ")

	select {
	case d := <-c.Deltas():
		t.Errorf("unexpected delta %q", d.Text)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContinuous_StopClosesChannel(t *testing.T) {
	t.Parallel()
	c := source.NewContinuous(5 * time.Millisecond)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-c.Deltas(); ok {
		t.Error("channel should be closed after Stop")
	}
	c.Push("late") // must not panic
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestContinuous_ContextCancelStops(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	c := source.NewContinuous(5 * time.Millisecond)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case _, ok := <-c.Deltas():
		if ok {
			t.Error("expected closed channel, got delta")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancel")
	}
}

func recvDelta(t *testing.T, s source.Source) source.Delta {
	t.Helper()
	select {
	case d := <-s.Deltas():
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delta arrived")
		return source.Delta{}
	}
}
