package persistence

import (
	"errors"
	"strings"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports a unique constraint failure from either driver.
// TranslateError covers postgres; the sqlite driver surfaces the raw message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// notFoundOr maps gorm.ErrRecordNotFound to a NOT_FOUND domain error
func notFoundOr(err error, entity string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.NewNotFoundError(entity, id)
	}
	return err
}

func staleVersion(entity string, id any) error {
	return shared.ErrConcurrencyConflict.
		WithDetail("entity", entity).
		WithDetail("id", id)
}
