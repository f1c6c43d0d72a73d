// Package observe provides application-wide observability primitives for
// Tilawa: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Tilawa metrics.
const meterName = "github.com/goquran/tilawa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// LocateDuration tracks chapter identification latency, from transcript
	// delta to chapter lock.
	LocateDuration metric.Float64Histogram

	// FlushDuration tracks chunked-transcription flush latency.
	FlushDuration metric.Float64Histogram

	// SpeakDuration tracks translation playback latency, from speak command
	// to client acknowledgement.
	SpeakDuration metric.Float64Histogram

	// --- Counters ---

	// VersesMatched counts recognized verses. Use with attribute:
	//   attribute.String("chapter", ...)
	VersesMatched metric.Int64Counter

	// SessionsStarted counts recitation sessions.
	SessionsStarted metric.Int64Counter

	// SessionResets counts session resets. Use with attribute:
	//   attribute.String("reason", ...)
	SessionResets metric.Int64Counter

	// TranscriptDeltas counts transcript increments fed to the matcher. Use
	// with attribute:
	//   attribute.String("source", ...) — "continuous" or "chunked"
	TranscriptDeltas metric.Int64Counter

	// --- Error counters ---

	// TranscribeErrors counts failed transcription requests. Use with
	// attribute: attribute.String("provider", ...)
	TranscribeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recitation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// BufferedAudioSessions tracks sessions currently holding uploaded audio.
	BufferedAudioSessions metric.Int64UpDownCounter

	// LiveClients tracks connected live-socket clients.
	LiveClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for recognition-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LocateDuration, err = m.Float64Histogram("tilawa.locate.duration",
		metric.WithDescription("Latency of chapter identification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FlushDuration, err = m.Float64Histogram("tilawa.flush.duration",
		metric.WithDescription("Latency of chunked-transcription flushes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("tilawa.speak.duration",
		metric.WithDescription("Latency of translation playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VersesMatched, err = m.Int64Counter("tilawa.verses.matched",
		metric.WithDescription("Total recognized verses by chapter."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("tilawa.sessions.started",
		metric.WithDescription("Total recitation sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionResets, err = m.Int64Counter("tilawa.sessions.resets",
		metric.WithDescription("Total session resets by reason."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptDeltas, err = m.Int64Counter("tilawa.transcript.deltas",
		metric.WithDescription("Total transcript increments by source."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranscribeErrors, err = m.Int64Counter("tilawa.transcribe.errors",
		metric.WithDescription("Total failed transcription requests by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tilawa.active_sessions",
		metric.WithDescription("Number of live recitation sessions."),
	); err != nil {
		return nil, err
	}
	if met.BufferedAudioSessions, err = m.Int64UpDownCounter("tilawa.buffered_audio_sessions",
		metric.WithDescription("Number of sessions holding uploaded audio."),
	); err != nil {
		return nil, err
	}
	if met.LiveClients, err = m.Int64UpDownCounter("tilawa.live_clients",
		metric.WithDescription("Number of connected live-socket clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tilawa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVerseMatched records a recognized verse for the given chapter.
func (m *Metrics) RecordVerseMatched(ctx context.Context, chapter string) {
	m.VersesMatched.Add(ctx, 1,
		metric.WithAttributes(attribute.String("chapter", chapter)),
	)
}

// RecordSessionReset records a session reset with its reason.
func (m *Metrics) RecordSessionReset(ctx context.Context, reason string) {
	m.SessionResets.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordTranscriptDelta records one transcript increment from the given
// source.
func (m *Metrics) RecordTranscriptDelta(ctx context.Context, src string) {
	m.TranscriptDeltas.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", src)),
	)
}

// RecordTranscribeError records a failed transcription request.
func (m *Metrics) RecordTranscribeError(ctx context.Context, provider string) {
	m.TranscribeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
