// Package observe provides application-wide observability primitives for
// PronunciaPA: OpenTelemetry metrics with a Prometheus exporter bridge so
// instruments stay scrapable via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/pronunciapa/pronunciapa"

// Metrics holds all OpenTelemetry metric instruments for the kernel. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// PipelineDuration tracks complete pipeline invocations. Use with
	// attribute.String("op", "transcribe"|"compare"|"feedback").
	PipelineDuration metric.Float64Histogram

	// FrontendDuration tracks audio decode + clean-up latency.
	FrontendDuration metric.Float64Histogram

	// ASRDuration tracks backend transcription latency.
	ASRDuration metric.Float64Histogram

	// CompareDuration tracks alignment DP latency.
	CompareDuration metric.Float64Histogram

	// --- Counters ---

	// PluginRequests counts provider calls. Use with attributes:
	//   attribute.String("plugin", ...), attribute.String("status", ...)
	PluginRequests metric.Int64Counter

	// PluginErrors counts provider errors. Use with attribute:
	//   attribute.String("plugin", ...)
	PluginErrors metric.Int64Counter

	// CacheHits and CacheMisses count pipeline cache lookups.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// GateFailures counts requests rejected (softly) by the quality gate.
	GateFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks live streaming sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// evaluation-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		inst *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.PipelineDuration, "pronunciapa.pipeline.duration", "Latency of complete pipeline invocations."},
		{&met.FrontendDuration, "pronunciapa.frontend.duration", "Latency of audio decoding and clean-up."},
		{&met.ASRDuration, "pronunciapa.asr.duration", "Latency of backend transcription."},
		{&met.CompareDuration, "pronunciapa.compare.duration", "Latency of phonetic alignment."},
	}
	for _, h := range histograms {
		if *h.inst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		inst *metric.Int64Counter
		name string
		desc string
	}{
		{&met.PluginRequests, "pronunciapa.plugin.requests", "Provider calls by plugin and status."},
		{&met.PluginErrors, "pronunciapa.plugin.errors", "Provider errors by plugin."},
		{&met.CacheHits, "pronunciapa.cache.hits", "Pipeline cache hits."},
		{&met.CacheMisses, "pronunciapa.cache.misses", "Pipeline cache misses."},
		{&met.GateFailures, "pronunciapa.gate.failures", "Requests that failed the audio quality gate."},
	}
	for _, c := range counters {
		if *c.inst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("pronunciapa.sessions.active",
		metric.WithDescription("Live streaming sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide [Metrics] built from the global meter
// provider. Instruments are created on first use, after [InitProvider] has
// installed the real provider in main.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on duplicate registration
			// with conflicting types; fall back to no-op instruments.
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordPlugin records one provider call outcome on m.
func (m *Metrics) RecordPlugin(ctx context.Context, name string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.PluginErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("plugin", name)))
	}
	m.PluginRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plugin", name),
		attribute.String("status", status),
	))
}
