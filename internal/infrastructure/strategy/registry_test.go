package strategy

import (
	"errors"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/infrastructure/strategy/valuation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryWithDefaults(t *testing.T) {
	r, err := NewRegistryWithDefaults("")
	require.NoError(t, err)

	assert.Equal(t, []strategy.ValuationMethod{
		strategy.ValuationMethodAverage,
		strategy.ValuationMethodFIFO,
		strategy.ValuationMethodLIFO,
	}, r.ListValuationMethods())
	assert.Equal(t, strategy.ValuationMethodAverage, r.Default())

	s, err := r.GetValuationStrategy("")
	require.NoError(t, err)
	assert.Equal(t, strategy.ValuationMethodAverage, s.Method())

	s, err = r.GetValuationStrategy(strategy.ValuationMethodLIFO)
	require.NoError(t, err)
	assert.Equal(t, "lifo", s.Name())
}

func TestNewRegistryWithDefaults_UnknownDefault(t *testing.T) {
	_, err := NewRegistryWithDefaults("SPECIFIC")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestStrategyRegistry_DuplicateRegistration(t *testing.T) {
	r := NewStrategyRegistry()
	require.NoError(t, r.RegisterValuationStrategy(valuation.NewFIFOStrategy()))

	err := r.RegisterValuationStrategy(valuation.NewFIFOStrategy())
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
}

func TestStrategyRegistry_NoDefault(t *testing.T) {
	r := NewStrategyRegistry()
	_, err := r.GetValuationStrategy("")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
