package resilience

import (
	"context"
	"errors"
	"testing"

	transcribemock "github.com/goquran/tilawa/internal/transcribe/mock"
)

func TestTranscriberFallback_PrimarySuccess(t *testing.T) {
	primary := &transcribemock.Transcriber{Text: "بسم الله"}
	secondary := &transcribemock.Transcriber{Text: "unused"}

	f := NewTranscriberFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper-server", secondary)

	got, err := f.Transcribe(context.Background(), []byte("audio"), "audio/webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "بسم الله" {
		t.Fatalf("text = %q, want primary result", got)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("fallback called %d times, want 0", secondary.CallCount())
	}
}

func TestTranscriberFallback_FailoverToSecondary(t *testing.T) {
	primary := &transcribemock.Transcriber{Err: errTest}
	secondary := &transcribemock.Transcriber{Text: "الحمد لله"}

	f := NewTranscriberFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	f.AddFallback("whisper-server", secondary)

	got, err := f.Transcribe(context.Background(), []byte("audio"), "audio/webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "الحمد لله" {
		t.Fatalf("text = %q, want fallback result", got)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
}

func TestTranscriberFallback_AllFail(t *testing.T) {
	primary := &transcribemock.Transcriber{Err: errTest}

	f := NewTranscriberFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := f.Transcribe(context.Background(), []byte("audio"), "audio/webm")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriberFallback_OpenCircuitSkipsPrimary(t *testing.T) {
	primary := &transcribemock.Transcriber{Err: errTest}
	secondary := &transcribemock.Transcriber{Text: "ok"}

	f := NewTranscriberFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	f.AddFallback("whisper-server", secondary)

	for i := 0; i < 3; i++ {
		if _, err := f.Transcribe(context.Background(), []byte("audio"), "audio/webm"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Two failures trip the primary's breaker; the third round must not
	// reach it at all.
	if got := primary.CallCount(); got != 2 {
		t.Fatalf("primary called %d times, want 2", got)
	}
	if got := secondary.CallCount(); got != 3 {
		t.Fatalf("fallback called %d times, want 3", got)
	}
}

func TestTranscriberFallback_PromptForwarded(t *testing.T) {
	primary := &transcribemock.Transcriber{Text: "الرحمن الرحيم"}

	f := NewTranscriberFallback(primary, "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	got, err := f.TranscribeWithPrompt(context.Background(), []byte("audio"), "audio/webm", "بسم الله")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "الرحمن الرحيم" {
		t.Fatalf("text = %q", got)
	}
	calls := primary.Calls()
	if len(calls) != 1 || calls[0].Prompt != "بسم الله" {
		t.Fatalf("prompt not forwarded: %+v", calls)
	}
}
