package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Record operations counted by RecordSync.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSkip   = "skip"
)

var (
	metricsOnce      sync.Once
	metricsInitErr   error
	syncCounter      metric.Int64Counter
	extentCounter    metric.Int64Counter
	commandHistogram metric.Float64Histogram
)

// RecordSync counts CSW records touched by a load, by operation and outcome.
func RecordSync(ctx context.Context, operation string, n int, err error) {
	if n <= 0 {
		return
	}
	if ensureMetrics() != nil {
		return
	}
	syncCounter.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("record.operation", operation),
		attribute.String("outcome", outcome(err)),
	))
}

// RecordExtents counts extents written and spatial extras rejected in one run.
func RecordExtents(ctx context.Context, generated, invalid int) {
	if ensureMetrics() != nil {
		return
	}
	if generated > 0 {
		extentCounter.Add(ctx, int64(generated), metric.WithAttributes(attribute.String("outcome", "generated")))
	}
	if invalid > 0 {
		extentCounter.Add(ctx, int64(invalid), metric.WithAttributes(attribute.String("outcome", "invalid")))
	}
}

// RecordCommand observes the duration of one CLI command.
func RecordCommand(ctx context.Context, command string, d time.Duration, err error) {
	if ensureMetrics() != nil {
		return
	}
	commandHistogram.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome(err)),
	))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("ckan-spatial")

		syncCounter, metricsInitErr = meter.Int64Counter(
			"ckan_spatial.pycsw.records_total",
			metric.WithDescription("CSW records processed by load, partitioned by operation and outcome"),
			metric.WithUnit("{record}"),
		)
		if metricsInitErr != nil {
			return
		}

		extentCounter, metricsInitErr = meter.Int64Counter(
			"ckan_spatial.extents_total",
			metric.WithDescription("Package extents generated or rejected"),
			metric.WithUnit("{package}"),
		)
		if metricsInitErr != nil {
			return
		}

		commandHistogram, metricsInitErr = meter.Float64Histogram(
			"ckan_spatial.command.duration_ms",
			metric.WithDescription("CLI command duration"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
