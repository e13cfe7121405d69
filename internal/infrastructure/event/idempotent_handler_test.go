package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) Remember(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

// newTestMetrics returns ledger metrics backed by a manual reader and a
// function reporting the events.handled count per outcome
func newTestMetrics(t *testing.T) (*telemetry.LedgerMetrics, func() map[string]int64) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewLedgerMetrics(provider.Meter(telemetry.MeterName))
	require.NoError(t, err)

	return m, func() map[string]int64 {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		out := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				if metric.Name != "stockledger.events.handled" {
					continue
				}
				sum, ok := metric.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					outcome, _ := dp.Attributes.Value(telemetry.AttrKeyOutcome)
					out[outcome.AsString()] += dp.Value
				}
			}
		}
		return out
	}
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()
	metrics, handled := newTestMetrics(t)

	inner := newTestHandler("A")
	h := NewIdempotentHandler(inner, store, zap.NewNop(), WithLedgerMetrics(metrics))
	event := newTestEvent("A")

	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))

	assert.Len(t, inner.getHandled(), 1)
	assert.Equal(t, map[string]int64{
		telemetry.OutcomeCompleted: 1,
		telemetry.OutcomeDuplicate: 1,
	}, handled())
	assert.Equal(t, []string{"A"}, h.EventTypes())
}

func TestIdempotentHandler_FailureReleasesClaim(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	metrics, handled := newTestMetrics(t)

	inner := newTestHandler("A")
	inner.err = errors.New("transient")
	h := NewIdempotentHandler(inner, store, zap.NewNop(), WithLedgerMetrics(metrics))
	event := newTestEvent("A")

	assert.Error(t, h.Handle(context.Background(), event))

	inner.err = nil
	require.NoError(t, h.Handle(context.Background(), event))
	assert.Len(t, inner.getHandled(), 2)
	assert.Equal(t, map[string]int64{
		telemetry.OutcomeFailed:    1,
		telemetry.OutcomeCompleted: 1,
	}, handled())
}

func TestIdempotentHandler_StoreErrorProcessesAnyway(t *testing.T) {
	store := new(MockIdempotencyStore)
	store.On("Remember", mock.Anything, mock.Anything, "A", mock.Anything).
		Return("", false, errors.New("redis down"))

	inner := newTestHandler("A")
	h := NewIdempotentHandler(inner, store, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), newTestEvent("A")))
	assert.Len(t, inner.getHandled(), 1)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newTestHandler("A")
	h := NewIdempotentHandler(inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}))
	event := newTestEvent("A")

	require.NoError(t, h.Handle(context.Background(), event))
	require.NoError(t, h.Handle(context.Background(), event))

	assert.Len(t, inner.getHandled(), 2)
	store.AssertNotCalled(t, "Remember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotentHandler_ConfiguredTTL(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := newTestHandler("A")
	event := newTestEvent("A")
	store.On("Remember", mock.Anything, eventKeyPrefix+event.EventID().String(), "A", 2*time.Hour).
		Return("A", true, nil).Once()

	h := NewIdempotentHandler(inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: true, TTL: 2 * time.Hour}))
	require.NoError(t, h.Handle(context.Background(), event))
	store.AssertExpectations(t)

	d := NewIdempotentHandler(inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: true}))
	assert.Equal(t, shared.DefaultIdempotencyConfig().TTL, d.config.TTL, "a zero TTL keeps the default")
}

func TestIdempotentHandler_SharedLedgerMetrics(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()
	metrics, handled := newTestMetrics(t)

	a := NewIdempotentHandler(newTestHandler("A"), store, zap.NewNop(), WithLedgerMetrics(metrics))
	b := NewIdempotentHandler(newTestHandler("B"), store, zap.NewNop(), WithLedgerMetrics(metrics))

	require.NoError(t, a.Handle(context.Background(), newTestEvent("A")))
	require.NoError(t, b.Handle(context.Background(), newTestEvent("B")))

	assert.Equal(t, int64(2), handled()[telemetry.OutcomeCompleted])
}

func TestIdempotentHandler_NoMetrics(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()
	h := NewIdempotentHandler(newTestHandler("A"), store, zap.NewNop())
	assert.NotPanics(t, func() {
		require.NoError(t, h.Handle(context.Background(), newTestEvent("A")))
	})
}
