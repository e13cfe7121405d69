package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewDomainErrorf(CodeNotFound, "movement %s not found", "abc").WithDetail("movement_id", "abc")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, "abc", err.Details["movement_id"])
}

func TestDomainError_WrappedStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("process: %w", ErrInsufficientStock)

	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.Equal(t, CodeInsufficientStock, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestDomainError_WithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrNotFound.WithDetail("id", 1)
	assert.Nil(t, ErrNotFound.Details)
}

func TestFilter_LimitAndOffset(t *testing.T) {
	f := Filter{Page: 3, PageSize: 10}
	assert.Equal(t, 10, f.Limit())
	assert.Equal(t, 20, f.Offset())

	assert.Equal(t, 20, Filter{}.Limit())
	assert.Equal(t, 0, Filter{}.Offset())
	assert.Equal(t, 500, Filter{PageSize: 10000}.Limit())
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 21, 1, 10)
	assert.Equal(t, 3, p.TotalPages)
}

func TestDomainError_WithCauseUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrConcurrencyConflict.WithCause(cause).WithDetail("id", "x")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Nil(t, ErrConcurrencyConflict.Cause)
}
