package inventory_test

import (
	"testing"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLevelService_SetThresholds(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()
	f.receive(item, loc, 6, "3")

	level, err := f.levels.SetThresholds(f.ctx, item, loc, appinv.SetThresholdsRequest{
		MinStockLevel: 2, MaxStockLevel: 50, ReorderPoint: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), level.ReorderPoint)
	assert.True(t, level.IsLowStock)
	assert.Equal(t, int64(6), level.Quantity, "thresholds never move quantities")

	changed := f.events.OfType(inventory.EventTypeStockLevelChanged)
	require.NotEmpty(t, changed)
	last := changed[len(changed)-1].(*inventory.StockLevelChangedEvent)
	assert.Equal(t, inventory.StockChangeThresholds, last.Cause)

	_, err = f.levels.SetThresholds(f.ctx, item, loc, appinv.SetThresholdsRequest{MinStockLevel: 10, MaxStockLevel: 5})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	_, err = f.levels.SetThresholds(f.ctx, item, loc, appinv.SetThresholdsRequest{ReorderPoint: -1})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestStockLevelService_List(t *testing.T) {
	f := newLedgerFixture(t)
	loc := uuid.New()
	low, healthy, empty := uuid.New(), uuid.New(), uuid.New()

	f.receive(low, loc, 3, "1")
	f.receive(healthy, loc, 30, "1")
	f.receive(empty, loc, 2, "1")
	f.issue(empty, loc, 2)
	_, err := f.levels.SetThresholds(f.ctx, low, loc, appinv.SetThresholdsRequest{ReorderPoint: 5})
	require.NoError(t, err)

	page, err := f.levels.List(f.ctx, appinv.StockLevelListFilter{LocationID: &loc})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)

	below, err := f.levels.ListBelowThreshold(f.ctx, appinv.StockLevelListFilter{})
	require.NoError(t, err)
	require.Len(t, below.Items, 1)
	assert.Equal(t, low, below.Items[0].ItemID)

	out := true
	page, err = f.levels.List(f.ctx, appinv.StockLevelListFilter{OutOfStock: &out})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, empty, page.Items[0].ItemID)

	_, err = f.levels.Get(f.ctx, uuid.New(), loc)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
