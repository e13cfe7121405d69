package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestLedgerMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewLedgerMetrics(provider.Meter(MeterName))
	require.NoError(t, err)

	ctx := context.Background()
	m.MovementSubmitted(ctx, "IN", "NORMAL")
	m.MovementSubmitted(ctx, "OUT", "URGENT")
	m.MovementProcessed(ctx, "IN", OutcomeCompleted, 12*time.Millisecond)
	m.MovementProcessed(ctx, "OUT", OutcomeFailed, 3*time.Millisecond)
	m.Reservation(ctx, "reserve")
	m.Alert(ctx, "LOW_STOCK", "raised")
	m.Valuation(ctx, "FIFO", time.Millisecond)
	m.BatchesExpired(ctx, 3)
	m.BatchesExpired(ctx, 0)
	m.JobRun(ctx, "reservation_sweep", nil)
	m.JobRun(ctx, "reservation_sweep", errors.New("db down"))
	m.EventHandled(ctx, "StockLevelChanged", OutcomeCompleted)
	m.EventHandled(ctx, "StockLevelChanged", OutcomeDuplicate)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["stockledger.movements.submitted"]))
	assert.Equal(t, int64(2), sumOf(t, metrics["stockledger.movements.processed"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["stockledger.reservations"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["stockledger.alerts"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["stockledger.valuations"]))
	assert.Equal(t, int64(3), sumOf(t, metrics["stockledger.batches.expired"]))
	assert.Equal(t, int64(2), sumOf(t, metrics["stockledger.jobs"]))
	assert.Equal(t, int64(2), sumOf(t, metrics["stockledger.events.handled"]))

	hist, ok := metrics["stockledger.movement.process.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestLedgerMetrics_NilIsNoop(t *testing.T) {
	var m *LedgerMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.MovementSubmitted(ctx, "IN", "LOW")
		m.MovementProcessed(ctx, "IN", OutcomeCompleted, time.Second)
		m.Reservation(ctx, "release")
		m.Alert(ctx, "OVERSTOCK", "resolved")
		m.Valuation(ctx, "LIFO", time.Second)
		m.BatchesExpired(ctx, 1)
		m.JobRun(ctx, "alert_scan", nil)
		m.EventHandled(ctx, "BatchExpired", OutcomeFailed)
	})
}
