package persistence

import (
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"gorm.io/gorm"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// countAndPage runs the count and the paged find of a filtered query.
// The query is detached into its own session so both statements start from
// the same conditions.
func countAndPage[T any](query *gorm.DB, filter shared.Filter, allowed map[string]bool) ([]T, int64, error) {
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []T
	if err := paginate(query, filter, allowed).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// paginate applies the whitelisted ordering and page window of a filter.
// id is appended as a tiebreaker so pages are stable.
func paginate(query *gorm.DB, filter shared.Filter, allowed map[string]bool) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, "created_at")
	dir := ValidateSortOrder(filter.OrderDir)
	return query.
		Order(field + " " + dir).
		Order("id " + dir).
		Offset(filter.Offset()).
		Limit(filter.Limit())
}

// StockLevelSortFields contains allowed sort fields for stock levels
var StockLevelSortFields = map[string]bool{
	"id":                 true,
	"created_at":         true,
	"updated_at":         true,
	"item_id":            true,
	"location_id":        true,
	"quantity":           true,
	"reserved_quantity":  true,
	"available_quantity": true,
	"average_cost":       true,
	"last_movement_at":   true,
}

// MovementSortFields contains allowed sort fields for movements
var MovementSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"updated_at":       true,
	"item_id":          true,
	"type":             true,
	"status":           true,
	"priority":         true,
	"quantity":         true,
	"reference_number": true,
	"scheduled_at":     true,
	"completed_at":     true,
}

// ReservationSortFields contains allowed sort fields for reservations
var ReservationSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"item_id":        true,
	"location_id":    true,
	"quantity":       true,
	"status":         true,
	"reference_type": true,
	"expires_at":     true,
}

// AlertSortFields contains allowed sort fields for stock alerts
var AlertSortFields = map[string]bool{
	"id":               true,
	"created_at":       true,
	"updated_at":       true,
	"type":             true,
	"status":           true,
	"item_id":          true,
	"location_id":      true,
	"current_quantity": true,
}
