package inventory_test

import (
	"strings"
	"testing"
	"time"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchRequest(item, loc uuid.UUID, number string, qty int64, expiry time.Time) appinv.CreateBatchRequest {
	return appinv.CreateBatchRequest{
		ItemID:      item,
		LocationID:  loc,
		BatchNumber: number,
		Quantity:    qty,
		ExpiryDate:  &expiry,
	}
}

func TestBatchTracker_CreateBatch(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()
	expiry := f.clock.Now().Add(30 * 24 * time.Hour)

	b, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "LOT-1", 40, expiry))
	require.NoError(t, err)
	assert.Equal(t, "LOT-1", b.BatchNumber)
	assert.True(t, b.IsActive)
	assert.Equal(t, 30, b.DaysUntilExpiry)

	_, err = f.batches.CreateBatch(f.ctx, batchRequest(item, uuid.New(), "LOT-1", 1, expiry))
	assert.Equal(t, shared.CodeDuplicateBatch, shared.CodeOf(err), "batch numbers are unique per item")

	_, err = f.batches.CreateBatch(f.ctx, batchRequest(uuid.New(), loc, "LOT-1", 1, expiry))
	assert.NoError(t, err, "another item may reuse the number")

	_, err = f.batches.CreateBatch(f.ctx, appinv.CreateBatchRequest{ItemID: item, LocationID: loc, BatchNumber: "LOT-2"})
	assert.Equal(t, shared.CodeMissingExpiryDate, shared.CodeOf(err))

	generated, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "", 0, expiry))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(generated.BatchNumber, "B-"))
	assert.Contains(t, generated.BatchNumber, f.clock.Now().Format("20060102"))

	batches, err := f.batches.ListBatches(f.ctx, item)
	require.NoError(t, err)
	assert.Len(t, batches, 2)

	history, err := f.batches.History(f.ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(inventory.BatchActionCreated), history[0].Action)
	assert.Equal(t, int64(40), history[0].Quantity)
}

func TestBatchTracker_MovementsUpdateBatchQuantity(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()
	b, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "LOT-7", 0, f.clock.Now().Add(90*24*time.Hour)))
	require.NoError(t, err)

	f.process(appinv.SubmitMovementRequest{
		Type: "IN", ItemID: item, ToLocationID: &loc, Quantity: 25, BatchNumber: "LOT-7", UnitCost: costPtr("2"),
	})
	f.process(appinv.SubmitMovementRequest{
		Type: "OUT", ItemID: item, FromLocationID: &loc, Quantity: 10, BatchNumber: "LOT-7",
	})

	got, err := f.batches.GetBatch(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.Quantity)
	assert.Equal(t, int64(15), f.level(item, loc).Quantity)
}

func TestBatchTracker_UnknownBatchFailsMovement(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()

	m, err := f.ledger.Submit(f.ctx, appinv.SubmitMovementRequest{
		Type: "IN", ItemID: item, ToLocationID: &loc, Quantity: 5, BatchNumber: "NOPE", Priority: "URGENT",
	})
	require.NoError(t, err)

	_, err = f.ledger.Process(f.ctx, m.ID)
	assert.Equal(t, shared.CodeInvalidMovement, shared.CodeOf(err))

	got, err := f.ledger.Get(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", got.Status)
	_, err = f.levels.Get(f.ctx, item, loc)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBatchTracker_CreateBatchBeforeStockLevel(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()
	b, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "LOT-3", 0, f.clock.Now().Add(30*24*time.Hour)))
	require.NoError(t, err)

	_, err = f.levels.Get(f.ctx, item, loc)
	assert.ErrorIs(t, err, shared.ErrNotFound, "creating a batch does not touch stock levels")

	f.process(appinv.SubmitMovementRequest{
		Type: "IN", ItemID: item, ToLocationID: &loc, Quantity: 4, BatchNumber: "LOT-3", UnitCost: costPtr("3"),
	})
	assert.Equal(t, int64(4), f.level(item, loc).Quantity)
	got, err := f.batches.GetBatch(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Quantity)
}

func TestBatchTracker_BatchAtOtherLocationFailsMovement(t *testing.T) {
	f := newLedgerFixture(t)
	item, home, other := uuid.New(), uuid.New(), uuid.New()
	b, err := f.batches.CreateBatch(f.ctx, batchRequest(item, home, "LOT-9", 5, f.clock.Now().Add(90*24*time.Hour)))
	require.NoError(t, err)
	f.receive(item, other, 10, "1")

	for _, req := range []appinv.SubmitMovementRequest{
		{Type: "OUT", ItemID: item, FromLocationID: &other, Quantity: 3, BatchNumber: "LOT-9", Priority: "URGENT"},
		{Type: "IN", ItemID: item, ToLocationID: &other, Quantity: 3, BatchNumber: "LOT-9", Priority: "URGENT"},
	} {
		m, err := f.ledger.Submit(f.ctx, req)
		require.NoError(t, err)

		_, err = f.ledger.Process(f.ctx, m.ID)
		assert.Equal(t, shared.CodeInvalidMovement, shared.CodeOf(err), req.Type)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, home.String(), de.Details["batch_location_id"])
		assert.Equal(t, other.String(), de.Details["location_id"])

		got, err := f.ledger.Get(f.ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAILED", got.Status, req.Type)
	}

	assert.Equal(t, int64(10), f.level(item, other).Quantity)
	got, err := f.batches.GetBatch(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Quantity)
}

func TestBatchTracker_ExpiringAndExpired(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()
	now := f.clock.Now()

	soon, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "SOON", 5, now.Add(3*24*time.Hour)))
	require.NoError(t, err)
	_, err = f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "LATER", 5, now.Add(20*24*time.Hour)))
	require.NoError(t, err)
	past, err := f.batches.CreateBatch(f.ctx, batchRequest(item, loc, "PAST", 5, now.Add(-24*time.Hour)))
	require.NoError(t, err)

	_, err = f.batches.GetExpiringBatches(f.ctx, -1)
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
	_, err = f.batches.GetExpiringBatches(f.ctx, 200000)
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	all, err := f.batches.GetExpiringBatches(f.ctx, appinv.MaxExpiryWindowDays)
	require.NoError(t, err)
	assert.Len(t, all, 2, "the widest window still sees both live batches")

	expiring, err := f.batches.GetExpiringBatches(f.ctx, 7)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)
	assert.Equal(t, 3, expiring[0].DaysUntilExpiry)

	got, err := f.batches.GetBatch(f.ctx, past.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive, "expired batches are retired on read")
	assert.NotNil(t, got.DeactivatedAt)

	history, err := f.batches.History(f.ctx, past.ID)
	require.NoError(t, err)
	actions := make([]string, len(history))
	for i, h := range history {
		actions[i] = h.Action
	}
	assert.ElementsMatch(t, []string{string(inventory.BatchActionCreated), string(inventory.BatchActionExpired)}, actions)
	assert.Len(t, f.events.OfType(inventory.EventTypeBatchExpired), 1)

	f.clock.Advance(5 * 24 * time.Hour)
	stats, err := f.batches.DeactivateExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExpired)
	assert.Equal(t, 1, stats.Deactivated)

	stats, err = f.batches.DeactivateExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalExpired)
}
