// Package observe wires OpenTelemetry metrics and tracing into herald and
// ties them to structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping by the Prometheus exporter set up in [InitProvider]. Tests should
// build their own instruments with [NewMetrics] and a ManualReader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/herald"

// Outcome labels used with the counters below.
const (
	StatusOK    = "ok"
	StatusError = "error"

	SkipParse = "parse"
	SkipLink  = "link"
	SkipEmpty = "empty"

	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Metrics holds the instruments herald records to. All fields are safe for
// concurrent use.
type Metrics struct {
	// IngestDuration is the wall time of one source's ingestion, labelled by
	// "source".
	IngestDuration metric.Float64Histogram

	// PageFetchDuration is the latency of a raw page fetch, labelled by
	// "source".
	PageFetchDuration metric.Float64Histogram

	// Pages counts page fetches by "source" and "status".
	Pages metric.Int64Counter

	// LinkBatches counts imageinfo batch requests by "source" and "status".
	LinkBatches metric.Int64Counter

	// Records counts responses stored, by "source".
	Records metric.Int64Counter

	// RecordsSkipped counts dropped records by "source" and "reason"
	// (parse, link or empty).
	RecordsSkipped metric.Int64Counter

	// Lookups counts store lookups by "result" (hit or miss).
	Lookups metric.Int64Counter

	// Replies counts chat replies sent, by "kind".
	Replies metric.Int64Counter

	// StoredResponses is the number of responses in the live store.
	StoredResponses metric.Int64Gauge

	// HTTPRequestDuration is the latency of the health and metrics endpoints,
	// labelled by "method" and "path".
	HTTPRequestDuration metric.Float64Histogram
}

var fetchBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

var ingestBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.IngestDuration, err = m.Float64Histogram("herald.ingest.duration",
		metric.WithDescription("Duration of one source ingestion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ingestBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PageFetchDuration, err = m.Float64Histogram("herald.page.fetch.duration",
		metric.WithDescription("Latency of raw page fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fetchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Pages, err = m.Int64Counter("herald.pages",
		metric.WithDescription("Page fetches by source and status."),
	); err != nil {
		return nil, err
	}
	if met.LinkBatches, err = m.Int64Counter("herald.link_batches",
		metric.WithDescription("Batched file URL lookups by source and status."),
	); err != nil {
		return nil, err
	}
	if met.Records, err = m.Int64Counter("herald.records",
		metric.WithDescription("Responses stored by source."),
	); err != nil {
		return nil, err
	}
	if met.RecordsSkipped, err = m.Int64Counter("herald.records.skipped",
		metric.WithDescription("Records dropped during ingestion by source and reason."),
	); err != nil {
		return nil, err
	}
	if met.Lookups, err = m.Int64Counter("herald.lookups",
		metric.WithDescription("Response lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("herald.replies",
		metric.WithDescription("Chat replies sent by kind."),
	); err != nil {
		return nil, err
	}
	if met.StoredResponses, err = m.Int64Gauge("herald.stored_responses",
		metric.WithDescription("Number of responses in the live store."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("herald.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns instruments on the global meter provider, creating
// them on first use. Call it after [InitProvider].
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

// RecordPage counts one page fetch.
func (m *Metrics) RecordPage(ctx context.Context, source, status string) {
	m.Pages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

// RecordLinkBatches counts n batch requests with the same outcome.
func (m *Metrics) RecordLinkBatches(ctx context.Context, source, status string, n int) {
	if n == 0 {
		return
	}
	m.LinkBatches.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
}

// RecordStored counts n stored responses.
func (m *Metrics) RecordStored(ctx context.Context, source string, n int) {
	m.Records.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

// RecordSkipped counts n dropped records.
func (m *Metrics) RecordSkipped(ctx context.Context, source, reason string, n int) {
	if n == 0 {
		return
	}
	m.RecordsSkipped.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	))
}

// RecordLookup counts one lookup.
func (m *Metrics) RecordLookup(ctx context.Context, hit bool) {
	result := LookupMiss
	if hit {
		result = LookupHit
	}
	m.Lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordReply counts one chat reply.
func (m *Metrics) RecordReply(ctx context.Context, kind string) {
	m.Replies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
