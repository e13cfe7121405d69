package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBatch(t *testing.T, itemID, locationID uuid.UUID, number string, expiry time.Time) *inventory.Batch {
	t.Helper()
	b, err := inventory.NewBatch(inventory.BatchParams{
		ItemID:      itemID,
		LocationID:  locationID,
		BatchNumber: number,
		Quantity:    20,
		ExpiryDate:  &expiry,
	}, testNow)
	require.NoError(t, err)
	return b
}

func TestGormBatchRepository(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewGormBatchRepository(db)
	history := NewGormBatchHistoryRepository(db)
	itemID, locationID := uuid.New(), uuid.New()

	past := newTestBatch(t, itemID, locationID, "LOT-1", testNow.Add(-24*time.Hour))
	soon := newTestBatch(t, itemID, locationID, "LOT-2", testNow.Add(3*24*time.Hour))
	later := newTestBatch(t, itemID, uuid.New(), "LOT-3", testNow.Add(30*24*time.Hour))
	for _, b := range []*inventory.Batch{past, soon, later} {
		require.NoError(t, repo.Create(ctx, b))
	}

	t.Run("duplicate number for the same item is DUPLICATE_BATCH", func(t *testing.T) {
		dup := newTestBatch(t, itemID, locationID, "LOT-1", testNow.Add(time.Hour))
		err := repo.Create(ctx, dup)
		assert.Equal(t, shared.CodeDuplicateBatch, shared.CodeOf(err))

		other := newTestBatch(t, uuid.New(), locationID, "LOT-1", testNow.Add(time.Hour))
		assert.NoError(t, repo.Create(ctx, other))
	})

	t.Run("looks up by natural key", func(t *testing.T) {
		found, err := repo.FindByItemAndNumberForUpdate(ctx, itemID, "LOT-2")
		require.NoError(t, err)
		assert.Equal(t, soon.ID, found.ID)

		exists, err := repo.ExistsByItemAndNumber(ctx, itemID, "LOT-9")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.FindByItemAndNumber(ctx, itemID, "LOT-9")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("expiry windows", func(t *testing.T) {
		expiring, err := repo.FindExpiring(ctx, testNow, testNow.Add(7*24*time.Hour))
		require.NoError(t, err)
		require.Len(t, expiring, 1)
		assert.Equal(t, soon.ID, expiring[0].ID)

		expired, err := repo.FindExpired(ctx, testNow, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, past.ID, expired[0].ID)

		atLocation, err := repo.FindActiveByItemLocation(ctx, itemID, locationID)
		require.NoError(t, err)
		assert.Len(t, atLocation, 2)
	})

	t.Run("deactivation persists with its history", func(t *testing.T) {
		entry, err := past.Deactivate(testNow)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, past))
		require.NoError(t, history.Append(ctx, entry))

		reloaded, err := repo.FindByID(ctx, past.ID)
		require.NoError(t, err)
		assert.False(t, reloaded.IsActive)
		require.NotNil(t, reloaded.DeactivatedAt)

		entries, err := history.FindByBatch(ctx, past.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, inventory.BatchActionExpired, entries[0].Action)

		expired, err := repo.FindExpired(ctx, testNow, 10)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})

	t.Run("lists batches of an item by expiry", func(t *testing.T) {
		all, err := repo.FindByItem(ctx, itemID)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "LOT-1", all[0].BatchNumber)
		assert.Equal(t, "LOT-3", all[2].BatchNumber)
	})
}
