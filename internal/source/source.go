// Package source adapts different transcript producers to a single delta
// stream the recitation machine can consume. Two producers exist: the
// browser's continuous recognizer pushing interim results over the live
// socket, and a chunked recorder that ships audio to a transcription backend.
package source

import (
	"context"
	"time"
)

// Delta is one increment of recognized speech.
type Delta struct {
	Text string
	At   time.Time
}

// Source produces transcript deltas until stopped.
type Source interface {
	// Start begins producing deltas. The source stops when ctx is
	// cancelled or Stop is called.
	Start(ctx context.Context) error
	// Stop shuts the source down and closes its delta channel.
	Stop() error
	// Deltas returns the channel of produced deltas. It is closed when
	// the source stops.
	Deltas() <-chan Delta
}
