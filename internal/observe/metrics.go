// Package observe provides OpenTelemetry metrics and tracing for the
// transcription pipeline and the web UI.
//
// Tests should build their own [Metrics] with [NewMetrics] and a manual
// reader; everything else can use [DefaultMetrics], which is bound to the
// global meter provider installed by [InitProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/VirginiaXiao148/Pitch-Detector"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// TranscriptionDuration tracks end-to-end orchestrator latency.
	TranscriptionDuration metric.Float64Histogram

	// StageDuration tracks per-stage latency. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// Transcriptions counts finished transcriptions. Use with attribute:
	//   attribute.String("outcome", ...)
	Transcriptions metric.Int64Counter

	// PitchesDetected records the number of accepted pitches per transcription.
	PitchesDetected metric.Int64Histogram

	// ActiveJobs tracks the number of web UI jobs whose files are retained.
	ActiveJobs metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

var pitchCountBuckets = []float64{
	0, 1, 5, 10, 25, 50, 100, 250, 500, 1000,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptionDuration, err = m.Float64Histogram("pitchdetector.transcription.duration",
		metric.WithDescription("Latency of a full transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("pitchdetector.stage.duration",
		metric.WithDescription("Latency of a single pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transcriptions, err = m.Int64Counter("pitchdetector.transcriptions",
		metric.WithDescription("Total transcriptions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.PitchesDetected, err = m.Int64Histogram("pitchdetector.pitches",
		metric.WithDescription("Accepted pitches per transcription."),
		metric.WithExplicitBucketBoundaries(pitchCountBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveJobs, err = m.Int64UpDownCounter("pitchdetector.active_jobs",
		metric.WithDescription("Web UI jobs with retained output files."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchdetector.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics bound to the global
// meter provider.
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

// RecordTranscription records the outcome, latency and pitch count of one
// finished transcription.
func (m *Metrics) RecordTranscription(ctx context.Context, outcome string, seconds float64, pitches int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Transcriptions.Add(ctx, 1, attrs)
	m.TranscriptionDuration.Record(ctx, seconds, attrs)
	m.PitchesDetected.Record(ctx, int64(pitches))
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
