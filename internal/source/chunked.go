package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goquran/tilawa/internal/transcribe"
)

// AudioRecorder captures one chunk of microphone audio. Record blocks for
// roughly the requested duration and returns the encoded chunk and its MIME
// type. An empty chunk with a nil error means silence was captured.
type AudioRecorder interface {
	Record(ctx context.Context, d time.Duration) (chunk []byte, mimeType string, err error)
}

// Chunked records short fixed-length audio chunks, accumulates them in a
// transcription session, and periodically flushes the session to obtain
// transcript deltas. Busy and empty flushes are skipped silently; the next
// flush picks up whatever the skipped one would have produced.
type Chunked struct {
	recorder      AudioRecorder
	buffers       *transcribe.Buffers
	chunkInterval time.Duration
	flushInterval time.Duration
	prompt        string

	mu        sync.Mutex
	started   bool
	stopped   bool
	sessionID string
	cancel    context.CancelFunc
	out       chan Delta
	wg        sync.WaitGroup
}

// ChunkedOption is a functional option for Chunked.
type ChunkedOption func(*Chunked)

// WithPrompt sets a recognition-bias prompt forwarded to the transcriber on
// every flush.
func WithPrompt(prompt string) ChunkedOption {
	return func(c *Chunked) {
		c.prompt = prompt
	}
}

// NewChunked creates a chunked source. chunkInterval controls the recording
// cadence and flushInterval how often accumulated audio is transcribed.
func NewChunked(recorder AudioRecorder, buffers *transcribe.Buffers, chunkInterval, flushInterval time.Duration, opts ...ChunkedOption) *Chunked {
	c := &Chunked{
		recorder:      recorder,
		buffers:       buffers,
		chunkInterval: chunkInterval,
		flushInterval: flushInterval,
		out:           make(chan Delta, 16),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start implements Source. It launches the record and flush loops.
func (c *Chunked) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.New("source: chunked source already stopped")
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("source: chunked source already started")
	}
	c.started = true
	c.sessionID = uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.recordLoop(runCtx)
	go c.flushLoop(runCtx)
	go func() {
		<-runCtx.Done()
		_ = c.Stop()
	}()
	return nil
}

// Stop implements Source. It performs a final flush so trailing speech is
// not lost, ends the transcription session, and closes the delta channel.
func (c *Chunked) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	sessionID := c.sessionID
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	if started && sessionID != "" {
		ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		delta, err := c.buffers.End(ctx, sessionID, c.prompt)
		if err != nil && !errors.Is(err, transcribe.ErrBusy) {
			slog.Warn("final flush failed", "error", err)
		} else if delta != "" {
			c.deliver(delta)
		}
	}

	c.mu.Lock()
	close(c.out)
	c.mu.Unlock()
	return nil
}

// Deltas implements Source.
func (c *Chunked) Deltas() <-chan Delta {
	return c.out
}

func (c *Chunked) recordLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		chunk, mimeType, err := c.recorder.Record(ctx, c.chunkInterval)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("audio chunk recording failed", "error", err)
			continue
		}
		if len(chunk) == 0 {
			continue
		}
		if err := c.buffers.Append(c.sessionID, chunk, mimeType); err != nil {
			slog.Warn("audio chunk dropped", "error", err)
		}
	}
}

func (c *Chunked) flushLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delta, err := c.buffers.Flush(ctx, c.sessionID, c.prompt)
			switch {
			case errors.Is(err, transcribe.ErrBusy),
				errors.Is(err, transcribe.ErrNoAudio),
				errors.Is(err, transcribe.ErrSessionNotFound):
				// Nothing new this round.
			case err != nil:
				slog.Warn("transcript flush failed", "error", err)
			case delta != "":
				c.deliver(delta)
			}
		}
	}
}

// deliver sends a delta while holding the lock so Stop cannot close the
// channel mid-send.
func (c *Chunked) deliver(delta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case c.out <- Delta{Text: delta, At: time.Now()}:
	default:
		slog.Warn("transcript delta dropped, consumer stalled")
	}
}
