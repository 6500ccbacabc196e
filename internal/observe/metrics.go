// Package observe provides application-wide observability primitives for
// voicebridge: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all voicebridge metrics.
const meterName = "github.com/voicebridge-ai/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ASRDuration tracks per-chunk transcription latency (time spent inside
	// the serialized model call).
	ASRDuration metric.Float64Histogram

	// TranslationDuration tracks latency of one finalized unit's full
	// translation (all chunks, including retries).
	TranslationDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsCommitted counts transcript segments committed to session logs.
	SegmentsCommitted metric.Int64Counter

	// TranslationRetries counts retried translation attempts. Use with
	// attribute.String("provider", ...).
	TranslationRetries metric.Int64Counter

	// TranslationDrops counts finalized units dropped after exhausted retries.
	TranslationDrops metric.Int64Counter

	// BroadcastFailures counts listener sends that failed and evicted the
	// listener.
	BroadcastFailures metric.Int64Counter

	// ASRErrors counts failed transcription calls.
	ASRErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSpeakers tracks the number of live speaker sessions.
	ActiveSpeakers metric.Int64UpDownCounter

	// ActiveListeners tracks the number of live listener sessions.
	ActiveListeners metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// inference and network translation latencies.
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
	if met.ASRDuration, err = m.Float64Histogram("voicebridge.asr.duration",
		metric.WithDescription("Latency of one serialized transcription call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslationDuration, err = m.Float64Histogram("voicebridge.translation.duration",
		metric.WithDescription("Latency of translating one finalized unit across all target languages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SegmentsCommitted, err = m.Int64Counter("voicebridge.segments.committed",
		metric.WithDescription("Transcript segments committed to session logs."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRetries, err = m.Int64Counter("voicebridge.translation.retries",
		metric.WithDescription("Retried translation attempts by provider."),
	); err != nil {
		return nil, err
	}
	if met.TranslationDrops, err = m.Int64Counter("voicebridge.translation.drops",
		metric.WithDescription("Finalized units dropped after exhausted retries."),
	); err != nil {
		return nil, err
	}
	if met.BroadcastFailures, err = m.Int64Counter("voicebridge.broadcast.failures",
		metric.WithDescription("Listener sends that failed and evicted the listener."),
	); err != nil {
		return nil, err
	}
	if met.ASRErrors, err = m.Int64Counter("voicebridge.asr.errors",
		metric.WithDescription("Failed transcription calls."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("voicebridge.active_speakers",
		metric.WithDescription("Number of live speaker sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveListeners, err = m.Int64UpDownCounter("voicebridge.active_listeners",
		metric.WithDescription("Number of live listener sessions."),
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

// RecordTranslationRetry records one retried translation attempt.
func (m *Metrics) RecordTranslationRetry(ctx context.Context, provider string) {
	m.TranslationRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
