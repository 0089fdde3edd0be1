package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func useManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()
	return reader
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected data type %T", m.Data)

	want := attribute.NewSet(attrs...)
	for _, dp := range data.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordSync(t *testing.T) {
	reader := useManualReader(t)
	ctx := context.Background()

	RecordSync(ctx, OpInsert, 3, nil)
	RecordSync(ctx, OpInsert, 1, errors.New("duplicate key"))
	RecordSync(ctx, OpDelete, 2, nil)
	RecordSync(ctx, OpUpdate, 0, nil)

	metrics := collect(t, reader)
	records, ok := metrics["ckan_spatial.pycsw.records_total"]
	require.True(t, ok, "missing records metric")

	assert.Equal(t, int64(3), sumFor(t, records, attribute.String("record.operation", OpInsert), attribute.String("outcome", "ok")))
	assert.Equal(t, int64(1), sumFor(t, records, attribute.String("record.operation", OpInsert), attribute.String("outcome", "error")))
	assert.Equal(t, int64(2), sumFor(t, records, attribute.String("record.operation", OpDelete), attribute.String("outcome", "ok")))
	assert.Equal(t, int64(0), sumFor(t, records, attribute.String("record.operation", OpUpdate), attribute.String("outcome", "ok")))
}

func TestRecordExtentsAndCommand(t *testing.T) {
	reader := useManualReader(t)
	ctx := context.Background()

	RecordExtents(ctx, 5, 1)
	RecordCommand(ctx, "spatial extents", 120*time.Millisecond, nil)

	metrics := collect(t, reader)
	extents := metrics["ckan_spatial.extents_total"]
	assert.Equal(t, int64(5), sumFor(t, extents, attribute.String("outcome", "generated")))
	assert.Equal(t, int64(1), sumFor(t, extents, attribute.String("outcome", "invalid")))

	hist, ok := metrics["ckan_spatial.command.duration_ms"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 120.0, hist.DataPoints[0].Sum, 0.001)
}

func TestSetupProvider_NoEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), FromSettings("", "", false))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
