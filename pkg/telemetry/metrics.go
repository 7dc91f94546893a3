package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/citegate/citegate/pkg/domain"
)

var (
	metricsOnce            sync.Once
	metricsInitErr         error
	lookupCounter          metric.Int64Counter
	lookupRetryCounter     metric.Int64Counter
	lookupLatencyHistogram metric.Float64Histogram
	upstreamRetryCounter   metric.Int64Counter
)

// LookupMetrics captures the fields needed to record one citation metadata
// lookup.
type LookupMetrics struct {
	Bucket   string
	Status   domain.EnrichmentStatus
	Duration time.Duration
	Retries  int
}

// RecordLookup emits counters and histograms describing enrichment lookups.
func RecordLookup(ctx context.Context, m LookupMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("storage.bucket", m.Bucket),
		attribute.String("lookup.status", string(m.Status)),
	}

	lookupCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		lookupLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if m.Retries > 0 {
		lookupRetryCounter.Add(ctx, int64(m.Retries), metric.WithAttributes(attrs...))
	}
}

// RecordUpstreamRetries counts retry attempts performed against the answer
// engine for one request.
func RecordUpstreamRetries(ctx context.Context, retries int) {
	if retries <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil {
		return
	}
	upstreamRetryCounter.Add(ctx, int64(retries))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gateway.enrichment")

		lookupCounter, metricsInitErr = meter.Int64Counter(
			"gateway.enrichment.lookups_total",
			metric.WithDescription("Citation metadata lookups partitioned by status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		lookupRetryCounter, metricsInitErr = meter.Int64Counter(
			"gateway.enrichment.lookup_retries_total",
			metric.WithDescription("Retry attempts performed by metadata lookups"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		lookupLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"gateway.enrichment.lookup_duration_ms",
			metric.WithDescription("Citation metadata lookup latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		upstreamRetryCounter, metricsInitErr = meter.Int64Counter(
			"gateway.upstream.retries_total",
			metric.WithDescription("Retry attempts performed against the answer engine"),
			metric.WithUnit("{count}"),
		)
	})
	return metricsInitErr
}
