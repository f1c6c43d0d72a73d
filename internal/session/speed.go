package session

import (
	"time"

	"github.com/goquran/tilawa/internal/config"
)

// minMeasureWindow is the least elapsed session time before the measured
// pace is considered meaningful.
const minMeasureWindow = time.Second

// ComputeRate maps the observed recitation pace onto a playback rate using
// the configured band table. It reports ok=false when the sample is too
// small to measure (no words, or less than a second elapsed) or when no
// band applies; callers keep the previous rate in that case.
func ComputeRate(words int, elapsed time.Duration, bands []config.RateBand) (rate float64, ok bool) {
	if words <= 0 || elapsed < minMeasureWindow || len(bands) == 0 {
		return 0, false
	}
	wpm := float64(words) / elapsed.Minutes()
	for _, band := range bands {
		if wpm > band.MinWPM {
			return band.Rate, true
		}
	}
	return 0, false
}
