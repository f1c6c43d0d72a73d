// Package transcribe turns recorded recitation audio into Arabic text.
//
// It contains the provider-neutral [Transcriber] interface, concrete
// providers (OpenAI Whisper and a self-hosted whisper-server), and the
// per-session audio buffering used by the chunked transcript source.
package transcribe

import "context"

// Transcriber converts a complete audio recording into Arabic text.
// Implementations are expected to be safe for concurrent use.
type Transcriber interface {
	// Transcribe sends the audio payload to the backing speech model and
	// returns the recognised text. mimeType describes the container format
	// of the payload (e.g. "audio/webm"). The returned text is raw model
	// output; callers normalize it before matching.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}
