// Package mock provides a recording test double for the speech layer.
package mock

import (
	"context"
	"sync"

	"github.com/goquran/tilawa/internal/speech"
)

// Utterance captures a single Speak call for test assertions.
type Utterance struct {
	Text string
	Opts speech.Options
}

// Speaker records every Speak call and returns immediately. It is safe
// for concurrent use.
type Speaker struct {
	mu sync.Mutex

	// Spoken records all utterances in call order.
	Spoken []Utterance

	// Cancelled counts CancelAll invocations.
	Cancelled int

	// Err is returned by Speak when non-nil, allowing error injection.
	Err error

	// Block, when non-nil, is closed by the test to release a Speak call
	// that should simulate slow playback. Speak waits on it (or on ctx).
	Block chan struct{}
}

var _ speech.Speaker = (*Speaker)(nil)

// Speak records the utterance and returns the configured error.
func (s *Speaker) Speak(ctx context.Context, text string, opts speech.Options) error {
	s.mu.Lock()
	s.Spoken = append(s.Spoken, Utterance{Text: text, Opts: opts})
	block := s.Block
	err := s.Err
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CancelAll counts the cancellation.
func (s *Speaker) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled++
}

// Texts returns the spoken texts in call order.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	for i, u := range s.Spoken {
		out[i] = u.Text
	}
	return out
}

// Last returns the most recently recorded utterance, or nil.
func (s *Speaker) Last() *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Spoken) == 0 {
		return nil
	}
	u := s.Spoken[len(s.Spoken)-1]
	return &u
}
