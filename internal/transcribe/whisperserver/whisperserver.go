// Package whisperserver provides a transcribe.Transcriber that talks to a
// self-hosted whisper.cpp server over its HTTP inference endpoint.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goquran/tilawa/internal/transcribe"
)

const (
	inferencePath  = "/inference"
	defaultTimeout = 60 * time.Second
)

// Ensure Provider implements the transcribe.Transcriber interface.
var _ transcribe.Transcriber = (*Provider)(nil)

// Provider implements transcribe.Transcriber against a whisper.cpp server.
type Provider struct {
	baseURL  string
	language string
	client   *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the language hint sent with each request. Defaults to "ar".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// New constructs a Provider for the whisper server at baseURL
// (e.g. "http://localhost:8178").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whisperserver: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "ar",
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the JSON body returned by the whisper server.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements transcribe.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	body, contentType, err := buildForm(audio, mimeType, p.language)
	if err != nil {
		return "", fmt.Errorf("whisperserver: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+inferencePath, body)
	if err != nil {
		return "", fmt.Errorf("whisperserver: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperserver: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whisperserver: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisperserver: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("whisperserver: decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("whisperserver: server error: %s", parsed.Error)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// buildForm assembles the multipart body the whisper server expects: a "file"
// part with the audio plus form fields selecting JSON output.
func buildForm(audio []byte, mimeType, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileNameFor(mimeType))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return nil, "", err
	}
	if language != "" {
		if err := w.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func fileNameFor(mimeType string) string {
	switch mimeType {
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
