package transcribe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goquran/tilawa/internal/transcribe"
	"github.com/goquran/tilawa/internal/transcribe/mock"
)

func TestBuffers_FlushReturnsDelta(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{Texts: []string{
		"بسم الله",
		"بسم الله الرحمن الرحيم",
	}}
	b := transcribe.NewBuffers(tr)

	if err := b.Append("s1", []byte("chunk-1"), "audio/webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	delta, err := b.Flush(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("first Flush: %v", err)
	}
	if delta != "بسم الله" {
		t.Errorf("first delta: got %q", delta)
	}

	if err := b.Append("s1", []byte("chunk-2"), "audio/webm"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	delta, err = b.Flush(context.Background(), "s1", "")
	if err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if delta != "الرحمن الرحيم" {
		t.Errorf("second delta: got %q, want only the new suffix", delta)
	}

	calls := tr.Calls()
	if len(calls) != 2 {
		t.Fatalf("transcriber calls: got %d, want 2", len(calls))
	}
	if got := string(calls[1].Audio); got != "chunk-1chunk-2" {
		t.Errorf("second call should carry the whole buffer, got %q", got)
	}
}

func TestBuffers_RevisedTranscriptionReturnsWholeText(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{Texts: []string{
		"الحمد لله",
		"قل هو الله احد",
	}}
	b := transcribe.NewBuffers(tr)
	ctx := context.Background()

	b.Append("s1", []byte("a"), "audio/webm")
	if _, err := b.Flush(ctx, "s1", ""); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	b.Append("s1", []byte("b"), "audio/webm")
	delta, err := b.Flush(ctx, "s1", "")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delta != "قل هو الله احد" {
		t.Errorf("revised transcription should return the full text, got %q", delta)
	}
}

func TestBuffers_FlushWhileBusy(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{
		Text:    "نص",
		Block:   make(chan struct{}),
		Entered: make(chan struct{}, 1),
	}
	b := transcribe.NewBuffers(tr)
	b.Append("s1", []byte("a"), "audio/webm")

	first := make(chan error, 1)
	go func() {
		_, err := b.Flush(context.Background(), "s1", "")
		first <- err
	}()
	<-tr.Entered

	if _, err := b.Flush(context.Background(), "s1", ""); !errors.Is(err, transcribe.ErrBusy) {
		t.Fatalf("concurrent Flush: got %v, want ErrBusy", err)
	}

	close(tr.Block)
	if err := <-first; err != nil {
		t.Fatalf("first Flush: %v", err)
	}
}

func TestBuffers_FlushEmptySession(t *testing.T) {
	t.Parallel()
	b := transcribe.NewBuffers(&mock.Transcriber{})

	if _, err := b.Flush(context.Background(), "nope", ""); !errors.Is(err, transcribe.ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}

	b.Append("s1", nil, "audio/webm")
	if _, err := b.Flush(context.Background(), "s1", ""); !errors.Is(err, transcribe.ErrNoAudio) {
		t.Errorf("empty buffer: got %v, want ErrNoAudio", err)
	}
}

func TestBuffers_EndReleasesSession(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{Text: "الحمد لله"}
	b := transcribe.NewBuffers(tr)
	ctx := context.Background()

	b.Append("s1", []byte("a"), "audio/webm")
	delta, err := b.End(ctx, "s1", "")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if delta != "الحمد لله" {
		t.Errorf("final delta: got %q", delta)
	}
	if got := b.SessionCount(); got != 0 {
		t.Errorf("sessions after End: got %d, want 0", got)
	}
	// Ending an already-released session is not an error.
	if _, err := b.End(ctx, "s1", ""); err != nil {
		t.Errorf("second End: %v", err)
	}
}

func TestBuffers_Delete(t *testing.T) {
	t.Parallel()
	b := transcribe.NewBuffers(&mock.Transcriber{})

	if err := b.Delete("missing"); !errors.Is(err, transcribe.ErrSessionNotFound) {
		t.Errorf("Delete unknown: got %v, want ErrSessionNotFound", err)
	}
	b.Append("s1", []byte("a"), "audio/webm")
	if err := b.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := b.SessionCount(); got != 0 {
		t.Errorf("sessions after Delete: got %d, want 0", got)
	}
}

func TestBuffers_PromptForwarded(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{Text: "نص"}
	b := transcribe.NewBuffers(tr)

	b.Append("s1", []byte("a"), "audio/webm")
	if _, err := b.Flush(context.Background(), "s1", "بسم الله"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	calls := tr.Calls()
	if calls[0].Prompt != "بسم الله" {
		t.Errorf("prompt: got %q", calls[0].Prompt)
	}
}

func TestBuffers_BufferCap(t *testing.T) {
	t.Parallel()
	b := transcribe.NewBuffers(&mock.Transcriber{}, transcribe.WithMaxBufferBytes(4))

	if err := b.Append("s1", []byte("1234"), "audio/webm"); err != nil {
		t.Fatalf("Append within cap: %v", err)
	}
	if err := b.Append("s1", []byte("5"), "audio/webm"); !errors.Is(err, transcribe.ErrBufferFull) {
		t.Errorf("Append past cap: got %v, want ErrBufferFull", err)
	}
}

func TestBuffers_TranscriberErrorKeepsAudio(t *testing.T) {
	t.Parallel()
	tr := &mock.Transcriber{Err: errors.New("upstream down")}
	b := transcribe.NewBuffers(tr)
	ctx := context.Background()

	b.Append("s1", []byte("a"), "audio/webm")
	if _, err := b.Flush(ctx, "s1", ""); err == nil {
		t.Fatal("expected transcriber error")
	}

	// A later flush retries with the buffered audio intact.
	tr.Err = nil
	tr.Text = "نص"
	delta, err := b.Flush(ctx, "s1", "")
	if err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if delta != "نص" {
		t.Errorf("retry delta: got %q", delta)
	}
}
