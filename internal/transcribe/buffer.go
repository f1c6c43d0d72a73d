package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sentinel errors reported by Buffers. The API layer maps these to HTTP
// status codes (busy → 202, no audio → 204, unknown session → 404).
var (
	ErrBusy            = errors.New("transcription already in flight for this session")
	ErrNoAudio         = errors.New("no audio buffered for this session")
	ErrSessionNotFound = errors.New("unknown transcription session")
	ErrBufferFull      = errors.New("session audio buffer is full")
)

// defaultMaxBytes caps a session buffer at the 25 MB upload limit of the
// OpenAI transcription API.
const defaultMaxBytes = 25 << 20

// PromptTranscriber is an optional upgrade of Transcriber for backends that
// accept a text prompt to bias recognition.
type PromptTranscriber interface {
	Transcriber
	TranscribeWithPrompt(ctx context.Context, audio []byte, mimeType, prompt string) (string, error)
}

// BuffersOption is a functional option for Buffers.
type BuffersOption func(*Buffers)

// WithMaxBufferBytes overrides the per-session audio cap.
func WithMaxBufferBytes(n int) BuffersOption {
	return func(b *Buffers) {
		b.maxBytes = n
	}
}

// Buffers accumulates uploaded audio chunks per session and turns them into
// transcript deltas. Chunks append to a growing buffer; each flush
// re-transcribes the whole buffer and returns only the text that is new since
// the previous flush, so downstream consumers see an incremental stream even
// though the backend works on complete audio.
type Buffers struct {
	transcriber Transcriber
	maxBytes    int

	mu       sync.Mutex
	sessions map[string]*sessionBuffer
}

type sessionBuffer struct {
	audio    []byte
	mimeType string
	lastText string
	busy     bool
}

// NewBuffers creates an empty buffer set backed by the given transcriber.
func NewBuffers(transcriber Transcriber, opts ...BuffersOption) *Buffers {
	b := &Buffers{
		transcriber: transcriber,
		maxBytes:    defaultMaxBytes,
		sessions:    make(map[string]*sessionBuffer),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Append adds an audio chunk to the session's buffer, creating the session on
// first use. The MIME type of the first chunk wins for the whole session.
func (b *Buffers) Append(sessionID string, chunk []byte, mimeType string) error {
	if sessionID == "" {
		return errors.New("sessionID must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.sessions[sessionID]
	if !ok {
		sess = &sessionBuffer{mimeType: mimeType}
		b.sessions[sessionID] = sess
	}
	if len(sess.audio)+len(chunk) > b.maxBytes {
		return fmt.Errorf("%w (%d bytes)", ErrBufferFull, b.maxBytes)
	}
	sess.audio = append(sess.audio, chunk...)
	return nil
}

// Flush transcribes everything buffered for the session and returns the text
// that appeared since the last flush. Returns ErrBusy while a previous flush
// is still running and ErrNoAudio when nothing has been uploaded yet.
func (b *Buffers) Flush(ctx context.Context, sessionID, prompt string) (string, error) {
	return b.flush(ctx, sessionID, prompt, false)
}

// End performs a final flush and releases the session's buffer. A session
// with no audio is released without error.
func (b *Buffers) End(ctx context.Context, sessionID, prompt string) (string, error) {
	delta, err := b.flush(ctx, sessionID, prompt, true)
	if errors.Is(err, ErrNoAudio) || errors.Is(err, ErrSessionNotFound) {
		b.Delete(sessionID)
		return "", nil
	}
	return delta, err
}

// Delete drops a session's audio without transcribing it. Reports
// ErrSessionNotFound when there is nothing to drop.
func (b *Buffers) Delete(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(b.sessions, sessionID)
	return nil
}

// SessionCount reports how many sessions currently hold buffered audio.
func (b *Buffers) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Buffers) flush(ctx context.Context, sessionID, prompt string, release bool) (string, error) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return "", ErrSessionNotFound
	}
	if sess.busy {
		b.mu.Unlock()
		return "", ErrBusy
	}
	if len(sess.audio) == 0 {
		if release {
			delete(b.sessions, sessionID)
		}
		b.mu.Unlock()
		return "", ErrNoAudio
	}
	audio := append([]byte(nil), sess.audio...)
	mimeType := sess.mimeType
	lastText := sess.lastText
	sess.busy = true
	b.mu.Unlock()

	full, err := b.transcribe(ctx, audio, mimeType, prompt)

	b.mu.Lock()
	defer b.mu.Unlock()
	sess.busy = false
	if err != nil {
		return "", err
	}
	full = strings.TrimSpace(full)
	delta := deltaSince(lastText, full)
	sess.lastText = full
	if release {
		delete(b.sessions, sessionID)
	}
	return delta, nil
}

func (b *Buffers) transcribe(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	if prompt != "" {
		if pt, ok := b.transcriber.(PromptTranscriber); ok {
			return pt.TranscribeWithPrompt(ctx, audio, mimeType, prompt)
		}
	}
	return b.transcriber.Transcribe(ctx, audio, mimeType)
}

// deltaSince returns the suffix of full that is new relative to last. When
// the new transcription no longer starts with the previous one (the model
// revised its output), the whole text is returned so nothing is lost.
func deltaSince(last, full string) string {
	if last == "" {
		return full
	}
	if strings.HasPrefix(full, last) {
		return strings.TrimSpace(strings.TrimPrefix(full, last))
	}
	return full
}
