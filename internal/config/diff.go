package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged is true if any threshold, timeout, or rate band
	// changed. Tuning applies on the next session without a restart.
	TuningChanged bool

	// LanguageChanged is true if the corpus language changed. Applying it
	// requires refetching the corpus and resetting active sessions.
	LanguageChanged bool
	NewLanguage     string

	// SourceChanged is true if the transcript source mode or timing
	// changed. Applying it requires restarting active transcript sources.
	SourceChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !tuningEqual(old.Tuning, new.Tuning) {
		d.TuningChanged = true
	}

	if old.Corpus.Language != new.Corpus.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Corpus.Language
	}

	if old.Source != new.Source {
		d.SourceChanged = true
	}

	return d
}

// tuningEqual compares two tuning blocks including their rate band tables.
func tuningEqual(a, b Tuning) bool {
	if !slices.Equal(a.RateBands, b.RateBands) {
		return false
	}
	a.RateBands, b.RateBands = nil, nil
	return reflect.DeepEqual(a, b)
}
