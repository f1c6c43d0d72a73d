package source

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Continuous receives recognizer results pushed from the client and forwards
// them as deltas after a short debounce, so rapid-fire interim results
// collapse into one delta per pause. A Push after the client's recognizer
// restarts simply resumes the stream; no server-side re-arm is needed.
type Continuous struct {
	debounce time.Duration
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	pending []string
	timer   *time.Timer
	out     chan Delta
}

// NewContinuous creates a continuous source with the given debounce interval.
func NewContinuous(debounce time.Duration) *Continuous {
	return &Continuous{
		debounce: debounce,
		now:      time.Now,
		out:      make(chan Delta, 16),
	}
}

// Start implements Source. The context bounds the source's lifetime.
func (c *Continuous) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.New("source: continuous source already stopped")
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("source: continuous source already started")
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()
	return nil
}

// Push feeds one recognizer result into the debounce window. Empty results
// are ignored.
func (c *Continuous) Push(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.stopped {
		return
	}
	c.pending = append(c.pending, text)
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.emit)
	} else {
		c.timer.Reset(c.debounce)
	}
}

// emit flushes the accumulated results as a single delta. The send happens
// under the lock so Stop cannot close the channel mid-send.
func (c *Continuous) emit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || len(c.pending) == 0 {
		return
	}
	text := strings.Join(c.pending, " ")
	c.pending = nil
	c.timer = nil

	select {
	case c.out <- Delta{Text: text, At: c.now()}:
	default:
		// Consumer is gone or stalled. Dropping is safe: the recognizer
		// resends cumulative text on its next result.
	}
}

// Stop implements Source.
func (c *Continuous) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	close(c.out)
	return nil
}

// Deltas implements Source.
func (c *Continuous) Deltas() <-chan Delta {
	return c.out
}

var _ Source = (*Continuous)(nil)
