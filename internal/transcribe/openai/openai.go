// Package openai provides a transcribe.Transcriber backed by the OpenAI
// audio transcription API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/goquran/tilawa/internal/transcribe"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = string(oai.AudioModelWhisper1)

// Ensure Provider implements the transcribe.Transcriber interface.
var _ transcribe.Transcriber = (*Provider)(nil)

// Provider implements transcribe.Transcriber using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. This allows pointing
// the client at any OpenAI-compatible transcription endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 hint passed to the model. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai transcribe: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{language: "ar"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, language: cfg.language}, nil
}

// Transcribe implements transcribe.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return p.TranscribeWithPrompt(ctx, audio, mimeType, "")
}

// TranscribeWithPrompt implements transcribe.PromptTranscriber. The prompt
// biases recognition toward expected vocabulary, which helps with Qur'anic
// phrasing the general model renders inconsistently.
func (p *Provider) TranscribeWithPrompt(ctx context.Context, audio []byte, mimeType, prompt string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	params := oai.AudioTranscriptionNewParams{
		Model:    oai.AudioModel(p.model),
		File:     oai.File(bytes.NewReader(audio), fileNameFor(mimeType), mimeType),
		Language: param.NewOpt(p.language),
	}
	if prompt != "" {
		params.Prompt = param.NewOpt(prompt)
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	return resp.Text, nil
}

// fileNameFor picks a file name whose extension matches the MIME type, since
// the API infers the container format from it.
func fileNameFor(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg", "application/ogg":
		return "audio.ogg"
	case "audio/mp4":
		return "audio.mp4"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	default:
		return "audio.webm"
	}
}
