package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/goquran/tilawa/internal/corpus"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"openai", "whisper-server"},
	"speech":      {"browser"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Corpus
	if cfg.Corpus.Language != "" && !corpus.SupportedLanguage(cfg.Corpus.Language) {
		errs = append(errs, fmt.Errorf("corpus.language %q is not a supported translation", cfg.Corpus.Language))
	}

	// Source
	if cfg.Source.Mode != "" && !cfg.Source.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("source.mode %q is invalid; valid values: continuous, chunked", cfg.Source.Mode))
	}
	if cfg.Source.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("source.debounce_ms %d must not be negative", cfg.Source.DebounceMs))
	}
	if cfg.Source.Mode == SourceChunked {
		if cfg.Source.ChunkIntervalMs <= 0 {
			errs = append(errs, fmt.Errorf("source.chunk_interval_ms %d must be positive in chunked mode", cfg.Source.ChunkIntervalMs))
		}
		if cfg.Source.FlushIntervalMs < cfg.Source.ChunkIntervalMs {
			errs = append(errs, fmt.Errorf("source.flush_interval_ms %d must be at least source.chunk_interval_ms %d",
				cfg.Source.FlushIntervalMs, cfg.Source.ChunkIntervalMs))
		}
		if cfg.Providers.Transcriber.Name == "" {
			errs = append(errs, errors.New("source.mode chunked requires a providers.transcriber"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)

	// Tuning
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"tuning.chapter_threshold", cfg.Tuning.ChapterThreshold},
		{"tuning.corpus_threshold", cfg.Tuning.CorpusThreshold},
		{"tuning.window_threshold", cfg.Tuning.WindowThreshold},
		{"tuning.scan_threshold", cfg.Tuning.ScanThreshold},
		{"tuning.end_of_chapter_similarity", cfg.Tuning.EndOfChapterSimilarity},
	} {
		if th.value < 0 || th.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", th.name, th.value))
		}
	}
	if cfg.Tuning.RollingWindowSize < 1 {
		errs = append(errs, fmt.Errorf("tuning.rolling_window_size %d must be at least 1", cfg.Tuning.RollingWindowSize))
	}
	if cfg.Tuning.EmptyWindowLimit < 1 {
		errs = append(errs, fmt.Errorf("tuning.empty_window_limit %d must be at least 1", cfg.Tuning.EmptyWindowLimit))
	}
	if cfg.Tuning.SilenceTimeoutMs < 0 || cfg.Tuning.NoTranscriptTimeoutMs < 0 {
		errs = append(errs, errors.New("tuning timeouts must not be negative"))
	}

	// Rate bands must cover the low end and stay ordered so the first
	// exceeded band is the right one.
	for i, band := range cfg.Tuning.RateBands {
		prefix := fmt.Sprintf("tuning.rate_bands[%d]", i)
		if band.Rate < 0.5 || band.Rate > 2.0 {
			errs = append(errs, fmt.Errorf("%s.rate %.2f is out of range [0.5, 2.0]", prefix, band.Rate))
		}
		if i > 0 && band.MinWPM >= cfg.Tuning.RateBands[i-1].MinWPM {
			errs = append(errs, fmt.Errorf("%s.min_wpm %.0f must be below the previous band's %.0f",
				prefix, band.MinWPM, cfg.Tuning.RateBands[i-1].MinWPM))
		}
	}
	if n := len(cfg.Tuning.RateBands); n > 0 && cfg.Tuning.RateBands[n-1].MinWPM != 0 {
		slog.Warn("last rate band does not reach min_wpm 0; slow recitation will not adjust playback",
			"min_wpm", cfg.Tuning.RateBands[n-1].MinWPM)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
