// Package browser implements a speech.Speaker that delegates synthesis to a
// connected web client. The server does not produce audio itself: it sends
// speak commands over the live WebSocket and waits for the client to report
// that the utterance finished.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goquran/tilawa/internal/speech"
)

const defaultAckTimeout = 30 * time.Second

// Command is a speech instruction sent to the client over the live socket.
type Command struct {
	Type string  `json:"type"` // "speak" or "cancel"
	ID   string  `json:"id,omitempty"`
	Text string  `json:"text,omitempty"`
	Lang string  `json:"lang,omitempty"`
	Rate float64 `json:"rate,omitempty"`
}

// SendFunc delivers a command to the currently connected client.
type SendFunc func(cmd Command) error

// Option is a functional option for configuring the Speaker.
type Option func(*Speaker)

// WithAckTimeout sets how long Speak waits for the client to confirm an
// utterance before giving up.
func WithAckTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		s.ackTimeout = d
	}
}

// Speaker relays utterances to a single attached client. When no client is
// attached, utterances are dropped silently so recitation tracking is not
// held up by a missing browser tab.
type Speaker struct {
	ackTimeout time.Duration

	mu      sync.Mutex
	send    SendFunc
	pending map[string]chan error
}

// New creates a Speaker with no client attached.
func New(opts ...Option) *Speaker {
	s := &Speaker{
		ackTimeout: defaultAckTimeout,
		pending:    make(map[string]chan error),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Attach installs the send function for a freshly connected client. Any
// utterances still waiting on the previous client are cancelled.
func (s *Speaker) Attach(send SendFunc) {
	s.mu.Lock()
	s.send = send
	s.failPendingLocked(speech.ErrCancelled)
	s.mu.Unlock()
}

// Detach removes the current client. Pending utterances are cancelled.
func (s *Speaker) Detach() {
	s.mu.Lock()
	s.send = nil
	s.failPendingLocked(speech.ErrCancelled)
	s.mu.Unlock()
}

// Speak sends a speak command and blocks until the client acknowledges it,
// the context is cancelled, or the ack timeout elapses. Muted utterances and
// utterances with no client attached return immediately.
func (s *Speaker) Speak(ctx context.Context, text string, opts speech.Options) error {
	if opts.Muted {
		return nil
	}

	s.mu.Lock()
	send := s.send
	if send == nil {
		s.mu.Unlock()
		return nil
	}
	id := uuid.NewString()
	done := make(chan error, 1)
	s.pending[id] = done
	s.mu.Unlock()

	rate := opts.Rate
	if rate <= 0 {
		rate = 1.0
	}
	err := send(Command{
		Type: "speak",
		ID:   id,
		Text: text,
		Lang: opts.LanguageCode,
		Rate: rate,
	})
	if err != nil {
		s.drop(id)
		return err
	}

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.drop(id)
		return ctx.Err()
	case <-timer.C:
		s.drop(id)
		return errors.New("browser: client never confirmed utterance")
	}
}

// Ack marks the utterance with the given ID as finished. Called by the
// WebSocket read loop when the client reports completion. Unknown IDs are
// ignored, which covers acks arriving after a cancel.
func (s *Speaker) Ack(id string) {
	s.mu.Lock()
	if done, ok := s.pending[id]; ok {
		delete(s.pending, id)
		done <- nil
	}
	s.mu.Unlock()
}

// CancelAll tells the client to stop speaking and releases every blocked
// Speak call with speech.ErrCancelled.
func (s *Speaker) CancelAll() {
	s.mu.Lock()
	send := s.send
	s.failPendingLocked(speech.ErrCancelled)
	s.mu.Unlock()

	if send != nil {
		_ = send(Command{Type: "cancel"})
	}
}

func (s *Speaker) drop(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Speaker) failPendingLocked(err error) {
	for id, done := range s.pending {
		delete(s.pending, id)
		done <- err
	}
}

var _ speech.Speaker = (*Speaker)(nil)
