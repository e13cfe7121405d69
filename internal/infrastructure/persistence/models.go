package persistence

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/inventory"
	"gorm.io/gorm"
)

// Models returns every table the ledger owns, in creation order
func Models() []any {
	return []any{
		&inventory.StockLevel{},
		&inventory.Movement{},
		&inventory.Reservation{},
		&inventory.Batch{},
		&inventory.BatchHistory{},
		&inventory.ValuationRecord{},
		&inventory.StockAlert{},
	}
}

// AutoMigrate creates or updates the ledger tables from the model tags.
// Production schemas come from the SQL migrations; this serves sqlite and tests.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate ledger tables: %w", err)
	}
	return nil
}
