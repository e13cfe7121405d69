package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "DESC"},
		{"asc", "ASC"},
		{"  ASC ", "ASC"},
		{"desc", "DESC"},
		{"ASC; DROP TABLE movements;--", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		allowed  map[string]bool
		expected string
	}{
		{"empty falls back", "", MovementSortFields, "created_at"},
		{"whitelisted movement field", "scheduled_at", MovementSortFields, "scheduled_at"},
		{"field from another table", "expires_at", MovementSortFields, "created_at"},
		{"reservation expiry", "expires_at", ReservationSortFields, "expires_at"},
		{"stock level quantity", " available_quantity ", StockLevelSortFields, "available_quantity"},
		{"injection attempt", "quantity; DROP TABLE stock_levels", StockLevelSortFields, "created_at"},
		{"case sensitive", "STATUS", AlertSortFields, "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, tt.allowed, "created_at"))
		})
	}
}
