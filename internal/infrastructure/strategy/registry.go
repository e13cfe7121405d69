package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
)

// StrategyRegistry manages valuation strategy registrations
type StrategyRegistry struct {
	mu         sync.RWMutex
	valuations map[strategy.ValuationMethod]strategy.ValuationStrategy
	defaultKey strategy.ValuationMethod
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		valuations: make(map[strategy.ValuationMethod]strategy.ValuationStrategy),
	}
}

// RegisterValuationStrategy registers a valuation strategy under its method
func (r *StrategyRegistry) RegisterValuationStrategy(s strategy.ValuationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	method := s.Method()
	if _, exists := r.valuations[method]; exists {
		return fmt.Errorf("%w: valuation strategy '%s' already registered", shared.ErrAlreadyExists, method)
	}
	r.valuations[method] = s
	return nil
}

// GetValuationStrategy returns a valuation strategy by method, or the default if method is empty
func (r *StrategyRegistry) GetValuationStrategy(method strategy.ValuationMethod) (strategy.ValuationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if method == "" {
		method = r.defaultKey
		if method == "" {
			return nil, fmt.Errorf("%w: no default valuation strategy set", shared.ErrNotFound)
		}
	}

	s, exists := r.valuations[method]
	if !exists {
		return nil, fmt.Errorf("%w: valuation strategy '%s' not found", shared.ErrNotFound, method)
	}
	return s, nil
}

// ListValuationMethods returns all registered methods
func (r *StrategyRegistry) ListValuationMethods() []strategy.ValuationMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]strategy.ValuationMethod, 0, len(r.valuations))
	for m := range r.valuations {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// SetDefault sets the method used when callers do not name one
func (r *StrategyRegistry) SetDefault(method strategy.ValuationMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.valuations[method]; !exists {
		return fmt.Errorf("%w: valuation strategy '%s' not found", shared.ErrNotFound, method)
	}
	r.defaultKey = method
	return nil
}

// Default returns the default method
func (r *StrategyRegistry) Default() strategy.ValuationMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKey
}
