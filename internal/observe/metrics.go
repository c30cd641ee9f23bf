// Package observe provides application-wide observability primitives for
// FaceDancer: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all FaceDancer metrics.
const meterName = "github.com/sofie-labs/facedancer"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CompletionDuration tracks full reply-stream latency, from utterance to
	// the last persisted snippet.
	CompletionDuration metric.Float64Histogram

	// SpeakDuration tracks one avatar vocalization, enqueue to finished.
	SpeakDuration metric.Float64Histogram

	// FirstSnippetDuration tracks time from utterance to the first spoken
	// sentence, the latency the user actually perceives.
	FirstSnippetDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finalized user utterances.
	Utterances metric.Int64Counter

	// Snippets counts reply sentences handed to the playback queue.
	Snippets metric.Int64Counter

	// BargeIns counts user interruptions of an active reply.
	BargeIns metric.Int64Counter

	// DroppedUtterances counts utterances discarded because a completion was
	// already in flight.
	DroppedUtterances metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of live conversations.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for speech-pipeline latencies.
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
	if met.CompletionDuration, err = m.Float64Histogram("facedancer.completion.duration",
		metric.WithDescription("Latency of a full reply stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("facedancer.speak.duration",
		metric.WithDescription("Latency of one avatar vocalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstSnippetDuration, err = m.Float64Histogram("facedancer.first_snippet.duration",
		metric.WithDescription("Time from finalized utterance to first reply sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("facedancer.utterances",
		metric.WithDescription("Total finalized user utterances."),
	); err != nil {
		return nil, err
	}
	if met.Snippets, err = m.Int64Counter("facedancer.snippets",
		metric.WithDescription("Total reply sentences enqueued for playback."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("facedancer.barge_ins",
		metric.WithDescription("Total user interruptions of an active reply."),
	); err != nil {
		return nil, err
	}
	if met.DroppedUtterances, err = m.Int64Counter("facedancer.dropped_utterances",
		metric.WithDescription("Total utterances dropped while a completion was in flight."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("facedancer.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("facedancer.active_conversations",
		metric.WithDescription("Number of live conversations."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("facedancer.http.request.duration",
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

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance records one finalized user utterance.
func (m *Metrics) RecordUtterance(ctx context.Context) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1)
}

// RecordSnippet records one reply sentence handed to playback.
func (m *Metrics) RecordSnippet(ctx context.Context) {
	if m == nil {
		return
	}
	m.Snippets.Add(ctx, 1)
}

// RecordBargeIn records one user interruption.
func (m *Metrics) RecordBargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1)
}

// RecordDroppedUtterance records one utterance dropped under backpressure.
func (m *Metrics) RecordDroppedUtterance(ctx context.Context) {
	if m == nil {
		return
	}
	m.DroppedUtterances.Add(ctx, 1)
}

// ObserveCompletion records the duration of a full reply stream.
func (m *Metrics) ObserveCompletion(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionDuration.Record(ctx, d.Seconds())
}

// ObserveSpeak records the duration of one avatar vocalization.
func (m *Metrics) ObserveSpeak(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SpeakDuration.Record(ctx, d.Seconds())
}

// ObserveFirstSnippet records the utterance-to-first-sentence latency.
func (m *Metrics) ObserveFirstSnippet(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FirstSnippetDuration.Record(ctx, d.Seconds())
}

// AddActiveConversations adjusts the live-conversation gauge by delta.
func (m *Metrics) AddActiveConversations(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveConversations.Add(ctx, delta)
}
