package inventory_test

import (
	"testing"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLedger_SubmitBulk_Atomic(t *testing.T) {
	f := newLedgerFixture(t)
	item, a, b := uuid.New(), uuid.New(), uuid.New()
	f.receive(item, a, 10, "1")

	t.Run("one invalid item persists nothing", func(t *testing.T) {
		_, err := f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{
			Atomic: true,
			Movements: []appinv.SubmitMovementRequest{
				{Type: "IN", ItemID: item, ToLocationID: &b, Quantity: 5},
				{Type: "OUT", ItemID: item, FromLocationID: &a, Quantity: 50},
			},
		})
		require.Error(t, err)
		assert.Equal(t, shared.CodeInsufficientStock, shared.CodeOf(err))

		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, 1, de.Details["index"])

		page, err := f.ledger.List(f.ctx, appinv.MovementListFilter{LocationID: &b})
		require.NoError(t, err)
		assert.Zero(t, page.Total)
	})

	t.Run("idempotency keys are refused", func(t *testing.T) {
		_, err := f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{
			Atomic: true,
			Movements: []appinv.SubmitMovementRequest{
				{Type: "IN", ItemID: item, ToLocationID: &b, Quantity: 5, IdempotencyKey: "k"},
			},
		})
		assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
	})

	t.Run("valid batch persists every item", func(t *testing.T) {
		resp, err := f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{
			Atomic: true,
			Movements: []appinv.SubmitMovementRequest{
				{Type: "IN", ItemID: item, ToLocationID: &b, Quantity: 5},
				{Type: "TRANSFER", ItemID: item, FromLocationID: &a, ToLocationID: &b, Quantity: 4},
				{Type: "OUT", ItemID: item, FromLocationID: &a, Quantity: 6, Priority: "URGENT"},
			},
		})
		require.NoError(t, err)
		assert.True(t, resp.Atomic)
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, 3, resp.Succeeded)
		assert.Zero(t, resp.Failed)
		require.Len(t, resp.Results, 3)
		for i, r := range resp.Results {
			assert.Equal(t, i, r.Index)
			require.NotNil(t, r.Movement)
			assert.Nil(t, r.Error)
		}
		assert.Equal(t, "PENDING", resp.Results[0].Movement.Status)
		assert.Equal(t, "APPROVED", resp.Results[2].Movement.Status)

		page, err := f.ledger.List(f.ctx, appinv.MovementListFilter{ItemID: &item})
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.Total)
	})
}

func TestStockLedger_SubmitBulk_NonAtomic(t *testing.T) {
	f := newLedgerFixture(t)
	item, a, b := uuid.New(), uuid.New(), uuid.New()
	f.receive(item, a, 10, "1")

	resp, err := f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{
		Movements: []appinv.SubmitMovementRequest{
			{Type: "IN", ItemID: item, ToLocationID: &b, Quantity: 5},
			{Type: "OUT", ItemID: item, FromLocationID: &a, Quantity: 50},
			{Type: "OUT", ItemID: item, Quantity: 1},
			{Type: "TRANSFER", ItemID: item, FromLocationID: &a, ToLocationID: &b, Quantity: 3, IdempotencyKey: "t-1"},
		},
	})
	require.NoError(t, err)
	assert.False(t, resp.Atomic)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)

	require.Len(t, resp.Results, 4)
	assert.NotNil(t, resp.Results[0].Movement)
	require.NotNil(t, resp.Results[1].Error)
	assert.Equal(t, shared.CodeInsufficientStock, resp.Results[1].Error.Code)
	require.NotNil(t, resp.Results[2].Error)
	assert.Equal(t, shared.CodeInvalidMovement, resp.Results[2].Error.Code)
	assert.NotNil(t, resp.Results[3].Movement)
	for i, r := range resp.Results {
		assert.Equal(t, i, r.Index)
	}

	page, err := f.ledger.List(f.ctx, appinv.MovementListFilter{LocationID: &b})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestStockLedger_SubmitBulk_Limits(t *testing.T) {
	f := newLedgerFixture(t)
	item, loc := uuid.New(), uuid.New()

	_, err := f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	reqs := make([]appinv.SubmitMovementRequest, 11)
	for i := range reqs {
		reqs[i] = appinv.SubmitMovementRequest{Type: "IN", ItemID: item, ToLocationID: &loc, Quantity: 1}
	}
	_, err = f.ledger.SubmitBulk(f.ctx, appinv.BulkSubmitRequest{Movements: reqs})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}
