package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterTotal(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, "command_initiated", nil)
	m.RecordOperation(ctx, "command_initiated", errors.New("duplicate"))
	m.RecordHandler(ctx, "DeployHandler", false)
	m.RecordHandler(ctx, "DeployHandler", true)
	m.RecordTerminal(ctx, "completed")
	m.AddEvictions(ctx, 3)
	m.AddBusMessages(ctx, "deploy-service", "publish", 1)
	m.AddBusMessages(ctx, "deploy-service", "receive", 1)

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), counterTotal(t, metrics["sagaflow.activity.recordings"]))
	assert.Equal(t, int64(2), counterTotal(t, metrics["sagaflow.activity.handlers.finished"]))
	assert.Equal(t, int64(1), counterTotal(t, metrics["sagaflow.activity.commands.finished"]))
	assert.Equal(t, int64(3), counterTotal(t, metrics["sagaflow.status.evictions"]))
	assert.Equal(t, int64(2), counterTotal(t, metrics["sagaflow.bus.messages"]))
}

func TestMetricsSplitsAcceptedAndRejected(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, "handler_started", nil)
	m.RecordOperation(ctx, "handler_started", nil)
	m.RecordOperation(ctx, "handler_started", errors.New("unknown message"))

	metrics := collect(t, reader)
	sum, ok := metrics["sagaflow.activity.recordings"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	// One series per accepted/rejected attribute pair.
	assert.Len(t, sum.DataPoints, 2)
}
