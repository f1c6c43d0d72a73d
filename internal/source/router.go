package source

import (
	"context"
	"sync"
)

// Router multiplexes one active source into a stable delta channel, so the
// recitation machine keeps a single input stream across source switches.
// Switching sources never touches tracking state downstream.
type Router struct {
	mu     sync.Mutex
	active Source
	closed bool
	out    chan Delta
	wg     sync.WaitGroup
}

// NewRouter creates a router with no active source.
func NewRouter() *Router {
	return &Router{out: make(chan Delta, 16)}
}

// Deltas returns the stable output channel. It closes when the router shuts
// down, not when an individual source stops.
func (r *Router) Deltas() <-chan Delta {
	return r.out
}

// Switch stops the current source, starts the given one, and forwards its
// deltas to the router's output. Passing nil just stops the current source.
func (r *Router) Switch(ctx context.Context, s Source) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if s != nil {
			_ = s.Stop()
		}
		return nil
	}
	old := r.active
	r.active = s
	r.mu.Unlock()

	if old != nil {
		_ = old.Stop()
	}
	if s == nil {
		return nil
	}
	if err := s.Start(ctx); err != nil {
		r.mu.Lock()
		if r.active == s {
			r.active = nil
		}
		r.mu.Unlock()
		return err
	}

	r.wg.Add(1)
	go r.forward(s)
	return nil
}

// forward copies a source's deltas to the output until the source closes.
func (r *Router) forward(s Source) {
	defer r.wg.Done()
	for d := range s.Deltas() {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		select {
		case r.out <- d:
		default:
		}
		r.mu.Unlock()
	}
}

// Close stops the active source and closes the output channel.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	active := r.active
	r.active = nil
	r.mu.Unlock()

	if active != nil {
		_ = active.Stop()
	}
	r.wg.Wait()

	r.mu.Lock()
	close(r.out)
	r.mu.Unlock()
	return nil
}
