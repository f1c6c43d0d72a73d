// Package config provides the configuration schema, loader, file watcher,
// and provider registry for the Tilawa recitation server.
package config

import "time"

// LogLevel controls log verbosity for the Tilawa server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceMode selects how transcripts reach the alignment engine.
type SourceMode string

const (
	// SourceContinuous consumes a streaming recogniser that delivers
	// growing interim transcripts over the live websocket.
	SourceContinuous SourceMode = "continuous"

	// SourceChunked records fixed-length audio chunks, uploads them for
	// transcription, and polls for transcript deltas.
	SourceChunked SourceMode = "chunked"
)

// IsValid reports whether m is a recognised source mode.
func (m SourceMode) IsValid() bool {
	return m == SourceContinuous || m == SourceChunked
}

// Config is the root configuration structure for Tilawa.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Source    SourceConfig    `yaml:"source"`
	Providers ProvidersConfig `yaml:"providers"`
	Tuning    Tuning          `yaml:"tuning"`
}

// ServerConfig holds network and logging settings for the Tilawa server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists origins permitted by the CORS middleware and
	// the live websocket handshake. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// CorpusConfig selects which corpus edition is fetched at startup.
type CorpusConfig struct {
	// Language names the translation to load (e.g., "english", "french").
	Language string `yaml:"language"`

	// BaseURL overrides the CDN endpoint for the selected language.
	// Leave empty to use the built-in per-language URL.
	BaseURL string `yaml:"base_url"`
}

// SourceConfig controls the transcript source in front of the engine.
type SourceConfig struct {
	// Mode selects continuous streaming recognition or chunked uploads.
	Mode SourceMode `yaml:"mode"`

	// DebounceMs batches rapid-fire interim results from the continuous
	// recogniser before they are forwarded to the engine.
	DebounceMs int `yaml:"debounce_ms"`

	// ChunkIntervalMs is the recording length of each uploaded audio chunk
	// in chunked mode.
	ChunkIntervalMs int `yaml:"chunk_interval_ms"`

	// FlushIntervalMs is how often buffered chunks are flushed through the
	// transcriber in chunked mode.
	FlushIntervalMs int `yaml:"flush_interval_ms"`
}

// Debounce returns the interim-result debounce interval.
func (s SourceConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMs) * time.Millisecond
}

// ChunkInterval returns the audio chunk recording length.
func (s SourceConfig) ChunkInterval() time.Duration {
	return time.Duration(s.ChunkIntervalMs) * time.Millisecond
}

// FlushInterval returns the transcription flush cadence.
func (s SourceConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	Transcriber ProviderEntry `yaml:"transcriber"`
	Speech      ProviderEntry `yaml:"speech"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper-server").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// RateBand maps a recitation pace, measured in words per minute, to a
// playback rate for spoken translations. Bands are evaluated in order;
// the first band whose MinWPM the measured pace exceeds wins.
type RateBand struct {
	// MinWPM is the exclusive lower bound of the band.
	MinWPM float64 `yaml:"min_wpm"`

	// Rate is the playback speed multiplier applied within the band.
	Rate float64 `yaml:"rate"`
}

// Tuning holds the matching thresholds and timing constants of the
// alignment engine. The zero value is not usable; start from
// [DefaultTuning] and override individual fields via YAML.
type Tuning struct {
	// SilenceTimeoutMs forces a session reset when no transcript arrives
	// for this long during verse tracking with auto-recitation off.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// NoTranscriptTimeoutMs is the global watchdog: a started session that
	// produces no transcript at all for this long is reset.
	NoTranscriptTimeoutMs int `yaml:"no_transcript_timeout_ms"`

	// RollingWindowSize is how many upcoming verses are searched when
	// tracking within a locked chapter.
	RollingWindowSize int `yaml:"rolling_window_size"`

	// ChapterThreshold is the maximum fuzzy score accepted when matching
	// accumulated words against chapter openings.
	ChapterThreshold float64 `yaml:"chapter_threshold"`

	// CorpusThreshold is the maximum fuzzy score for the whole-corpus
	// fallback search.
	CorpusThreshold float64 `yaml:"corpus_threshold"`

	// WindowThreshold is the maximum fuzzy score for rolling-window
	// verse matching.
	WindowThreshold float64 `yaml:"window_threshold"`

	// ScanThreshold is the score at or below which a sub-phrase hit is
	// considered confident during multi-verse scanning.
	ScanThreshold float64 `yaml:"scan_threshold"`

	// EndOfChapterSimilarity is the minimum similarity between the latest
	// transcript and the chapter's last verse for the end-of-chapter check.
	EndOfChapterSimilarity float64 `yaml:"end_of_chapter_similarity"`

	// EmptyWindowLimit is how many consecutive transcript events may fail
	// to match the rolling window before the session is interrupted.
	EmptyWindowLimit int `yaml:"empty_window_limit"`

	// ClosingFormulaDelayMs is the pause between announcing the closing
	// formula and resetting the session.
	ClosingFormulaDelayMs int `yaml:"closing_formula_delay_ms"`

	// RateBands is the recitation-pace to playback-rate table used by the
	// speed adapter. Must be ordered by descending MinWPM.
	RateBands []RateBand `yaml:"rate_bands"`
}

// SilenceTimeout returns the tracking silence timeout.
func (t Tuning) SilenceTimeout() time.Duration {
	return time.Duration(t.SilenceTimeoutMs) * time.Millisecond
}

// NoTranscriptTimeout returns the global no-transcript watchdog timeout.
func (t Tuning) NoTranscriptTimeout() time.Duration {
	return time.Duration(t.NoTranscriptTimeoutMs) * time.Millisecond
}

// ClosingFormulaDelay returns the pause before the post-formula reset.
func (t Tuning) ClosingFormulaDelay() time.Duration {
	return time.Duration(t.ClosingFormulaDelayMs) * time.Millisecond
}

// DefaultTuning returns the engine's built-in tuning constants.
func DefaultTuning() Tuning {
	return Tuning{
		SilenceTimeoutMs:       6500,
		NoTranscriptTimeoutMs:  9000,
		RollingWindowSize:      3,
		ChapterThreshold:       0.2,
		CorpusThreshold:        0.3,
		WindowThreshold:        0.4,
		ScanThreshold:          0.3,
		EndOfChapterSimilarity: 0.82,
		EmptyWindowLimit:       4,
		ClosingFormulaDelayMs:  2000,
		RateBands: []RateBand{
			{MinWPM: 90, Rate: 1.5},
			{MinWPM: 80, Rate: 1.25},
			{MinWPM: 60, Rate: 1.0},
			{MinWPM: 0, Rate: 0.85},
		},
	}
}

// DefaultSource returns the built-in transcript source timing.
func DefaultSource() SourceConfig {
	return SourceConfig{
		Mode:            SourceContinuous,
		DebounceMs:      300,
		ChunkIntervalMs: 3000,
		FlushIntervalMs: 6000,
	}
}

// applyDefaults fills zero-valued fields with built-in defaults so that a
// minimal YAML file yields a runnable configuration.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Corpus.Language == "" {
		c.Corpus.Language = "english"
	}

	def := DefaultSource()
	if c.Source.Mode == "" {
		c.Source.Mode = def.Mode
	}
	if c.Source.DebounceMs == 0 {
		c.Source.DebounceMs = def.DebounceMs
	}
	if c.Source.ChunkIntervalMs == 0 {
		c.Source.ChunkIntervalMs = def.ChunkIntervalMs
	}
	if c.Source.FlushIntervalMs == 0 {
		c.Source.FlushIntervalMs = def.FlushIntervalMs
	}

	dt := DefaultTuning()
	if c.Tuning.SilenceTimeoutMs == 0 {
		c.Tuning.SilenceTimeoutMs = dt.SilenceTimeoutMs
	}
	if c.Tuning.NoTranscriptTimeoutMs == 0 {
		c.Tuning.NoTranscriptTimeoutMs = dt.NoTranscriptTimeoutMs
	}
	if c.Tuning.RollingWindowSize == 0 {
		c.Tuning.RollingWindowSize = dt.RollingWindowSize
	}
	if c.Tuning.ChapterThreshold == 0 {
		c.Tuning.ChapterThreshold = dt.ChapterThreshold
	}
	if c.Tuning.CorpusThreshold == 0 {
		c.Tuning.CorpusThreshold = dt.CorpusThreshold
	}
	if c.Tuning.WindowThreshold == 0 {
		c.Tuning.WindowThreshold = dt.WindowThreshold
	}
	if c.Tuning.ScanThreshold == 0 {
		c.Tuning.ScanThreshold = dt.ScanThreshold
	}
	if c.Tuning.EndOfChapterSimilarity == 0 {
		c.Tuning.EndOfChapterSimilarity = dt.EndOfChapterSimilarity
	}
	if c.Tuning.EmptyWindowLimit == 0 {
		c.Tuning.EmptyWindowLimit = dt.EmptyWindowLimit
	}
	if c.Tuning.ClosingFormulaDelayMs == 0 {
		c.Tuning.ClosingFormulaDelayMs = dt.ClosingFormulaDelayMs
	}
	if len(c.Tuning.RateBands) == 0 {
		c.Tuning.RateBands = dt.RateBands
	}
}
