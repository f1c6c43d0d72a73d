// Package mock provides a test double for the transcribe.Transcriber
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/goquran/tilawa/internal/transcribe"
)

// Call records a single Transcribe invocation.
type Call struct {
	Audio    []byte
	MimeType string
	Prompt   string
}

// Transcriber is a recording transcribe.Transcriber. Set Text or Texts to
// script return values and Err to force failures. When Texts is non-empty,
// calls consume it in order and the last entry repeats.
type Transcriber struct {
	mu    sync.Mutex
	calls []Call

	Text  string
	Texts []string
	Err   error

	// Block, when non-nil, is received from inside Transcribe so tests can
	// hold a transcription in flight. Entered, when non-nil, receives a
	// value as each call enters the blocked section.
	Block   chan struct{}
	Entered chan struct{}
}

// Transcribe implements transcribe.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return t.TranscribeWithPrompt(ctx, audio, mimeType, "")
}

// TranscribeWithPrompt implements transcribe.PromptTranscriber.
func (t *Transcriber) TranscribeWithPrompt(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	if t.Block != nil {
		if t.Entered != nil {
			t.Entered <- struct{}{}
		}
		select {
		case <-t.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{
		Audio:    append([]byte(nil), audio...),
		MimeType: mimeType,
		Prompt:   prompt,
	})
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) > 0 {
		idx := len(t.calls) - 1
		if idx >= len(t.Texts) {
			idx = len(t.Texts) - 1
		}
		return t.Texts[idx], nil
	}
	return t.Text, nil
}

// Calls returns a copy of all recorded invocations.
func (t *Transcriber) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount reports how many times Transcribe was invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

var _ transcribe.PromptTranscriber = (*Transcriber)(nil)
