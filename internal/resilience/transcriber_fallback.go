package resilience

import (
	"context"

	"github.com/goquran/tilawa/internal/transcribe"
)

// TranscriberFallback wraps multiple transcription providers with automatic
// failover, so a rate-limited or unreachable primary does not stall the
// chunked recitation pipeline.
type TranscriberFallback struct {
	group *FallbackGroup[transcribe.Transcriber]
}

var _ transcribe.PromptTranscriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a fallback wrapper with the given primary
// transcriber.
func NewTranscriberFallback(primary transcribe.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber tried after the primary.
func (f *TranscriberFallback) AddFallback(name string, provider transcribe.Transcriber) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the transcription against the first healthy provider.
func (f *TranscriberFallback) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return ExecuteWithResult(f.group, func(t transcribe.Transcriber) (string, error) {
		return t.Transcribe(ctx, audio, mimeType)
	})
}

// TranscribeWithPrompt runs a prompted transcription against the first
// healthy provider. Providers without prompt support fall back to plain
// transcription.
func (f *TranscriberFallback) TranscribeWithPrompt(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	return ExecuteWithResult(f.group, func(t transcribe.Transcriber) (string, error) {
		if pt, ok := t.(transcribe.PromptTranscriber); ok {
			return pt.TranscribeWithPrompt(ctx, audio, mimeType, prompt)
		}
		return t.Transcribe(ctx, audio, mimeType)
	})
}
