// Package speech defines how verse translations are spoken back to the
// listener. The engine treats speech output as a blocking operation: a
// verse's translation must finish playing before the next matched verse
// is announced.
package speech

import (
	"context"
	"errors"
)

// ErrCancelled is returned by [Speaker.Speak] when the utterance was
// aborted by [Speaker.CancelAll] before playback finished.
var ErrCancelled = errors.New("speech: utterance cancelled")

// Options carries the per-utterance playback parameters derived from the
// session state at the moment of speaking.
type Options struct {
	// Muted suppresses audible output. Implementations must still honour
	// the call's pacing (or return immediately) so that callers do not
	// stall waiting for audio that will never play.
	Muted bool

	// Rate is the playback speed multiplier. 1.0 is normal speed.
	Rate float64

	// LanguageCode is the BCP 47 tag of the translation text, e.g. "en-US".
	LanguageCode string
}

// Speaker plays a piece of translated text aloud.
type Speaker interface {
	// Speak plays text and blocks until playback finishes, the context is
	// cancelled, or [Speaker.CancelAll] is called. A cancelled utterance
	// returns ctx.Err() or [ErrCancelled].
	Speak(ctx context.Context, text string, opts Options) error

	// CancelAll aborts any in-flight and queued utterances, causing their
	// Speak calls to return promptly.
	CancelAll()
}

// languageCodes maps corpus language names to the BCP 47 tags used for
// speech synthesis of the corresponding translation.
var languageCodes = map[string]string{
	"arabic":     "ar-SA",
	"bengali":    "bn-BD",
	"chinese":    "zh-CN",
	"english":    "en-US",
	"spanish":    "es-ES",
	"french":     "fr-FR",
	"indonesian": "id-ID",
	"russian":    "ru-RU",
	"swedish":    "sv-SE",
	"turkish":    "tr-TR",
}

// CodeFor returns the BCP 47 speech synthesis tag for a corpus language
// name, defaulting to "en-US" for unknown languages.
func CodeFor(language string) string {
	if code, ok := languageCodes[language]; ok {
		return code
	}
	return "en-US"
}
