package inventory

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func locPtr(id uuid.UUID) *uuid.UUID { return &id }

func TestMovementSpec_Validate(t *testing.T) {
	item := uuid.New()
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		spec    MovementSpec
		wantErr bool
	}{
		{"IN ok", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 1, ToLocationID: &a}, false},
		{"IN without to", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 1}, true},
		{"IN with from", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 1, ToLocationID: &a, FromLocationID: &b}, true},
		{"OUT ok", MovementSpec{ItemID: item, Type: MovementTypeOut, Quantity: 1, FromLocationID: &a}, false},
		{"OUT without from", MovementSpec{ItemID: item, Type: MovementTypeOut, Quantity: 1, ToLocationID: &a}, true},
		{"TRANSFER ok", MovementSpec{ItemID: item, Type: MovementTypeTransfer, Quantity: 1, FromLocationID: &a, ToLocationID: &b}, false},
		{"TRANSFER same location", MovementSpec{ItemID: item, Type: MovementTypeTransfer, Quantity: 1, FromLocationID: &a, ToLocationID: locPtr(a)}, true},
		{"TRANSFER missing to", MovementSpec{ItemID: item, Type: MovementTypeTransfer, Quantity: 1, FromLocationID: &a}, true},
		{"ADJUSTMENT ok", MovementSpec{ItemID: item, Type: MovementTypeAdjustment, Quantity: 1, FromLocationID: &a, Reason: "count"}, false},
		{"ADJUSTMENT no reason", MovementSpec{ItemID: item, Type: MovementTypeAdjustment, Quantity: 1, FromLocationID: &a, Reason: "  "}, true},
		{"ADJUSTMENT both locations", MovementSpec{ItemID: item, Type: MovementTypeAdjustment, Quantity: 1, FromLocationID: &a, ToLocationID: &b, Reason: "x"}, true},
		{"zero quantity", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 0, ToLocationID: &a}, true},
		{"unknown type", MovementSpec{ItemID: item, Type: "MOVE", Quantity: 1, ToLocationID: &a}, true},
		{"nil item", MovementSpec{Type: MovementTypeIn, Quantity: 1, ToLocationID: &a}, true},
		{"negative cost", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 1, ToLocationID: &a, UnitCost: decimal.NewNullDecimal(decimal.NewFromInt(-1))}, true},
		{"bad priority", MovementSpec{ItemID: item, Type: MovementTypeIn, Quantity: 1, ToLocationID: &a, Priority: "ASAP"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, shared.CodeInvalidMovement, shared.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newTestMovement(t *testing.T, priority MovementPriority) *Movement {
	t.Helper()
	to := uuid.New()
	m, err := NewMovement(MovementSpec{
		ItemID:       uuid.New(),
		Type:         MovementTypeIn,
		Quantity:     10,
		ToLocationID: &to,
		Priority:     priority,
		RequestedBy:  "user-1",
	}, testNow)
	require.NoError(t, err)
	return m
}

func TestNewMovement(t *testing.T) {
	t.Run("defaults to pending normal", func(t *testing.T) {
		m := newTestMovement(t, "")
		assert.Equal(t, MovementStatusPending, m.Status)
		assert.Equal(t, MovementPriorityNormal, m.Priority)
		assert.Nil(t, m.ApprovedAt)
	})

	t.Run("urgent is created approved", func(t *testing.T) {
		m := newTestMovement(t, MovementPriorityUrgent)
		assert.Equal(t, MovementStatusApproved, m.Status)
		assert.Equal(t, "user-1", m.ApprovedBy)
		require.NotNil(t, m.ApprovedAt)
	})
}

func TestMovement_Workflow(t *testing.T) {
	t.Run("approve only from pending", func(t *testing.T) {
		m := newTestMovement(t, "")
		require.NoError(t, m.Approve("mgr", testNow))
		assert.Equal(t, MovementStatusApproved, m.Status)
		assert.Equal(t, shared.CodeInvalidMovementState, shared.CodeOf(m.Approve("mgr", testNow)))
	})

	t.Run("approve requires approver", func(t *testing.T) {
		m := newTestMovement(t, "")
		assert.Error(t, m.Approve(" ", testNow))
	})

	t.Run("reject only from pending", func(t *testing.T) {
		m := newTestMovement(t, "")
		require.NoError(t, m.Reject("mgr", "wrong count", testNow))
		assert.Equal(t, MovementStatusRejected, m.Status)
		assert.Equal(t, "wrong count", m.RejectionReason)

		m = newTestMovement(t, MovementPriorityUrgent)
		assert.Equal(t, shared.CodeInvalidMovementState, shared.CodeOf(m.Reject("mgr", "x", testNow)))
	})

	t.Run("cancel from pending or approved", func(t *testing.T) {
		m := newTestMovement(t, MovementPriorityUrgent)
		require.NoError(t, m.Cancel("ops", "duplicate order", testNow))
		assert.Equal(t, "duplicate order", m.CancelReason)
		assert.Equal(t, MovementStatusCancelled, m.Status)
		assert.Error(t, m.Cancel("ops", "duplicate order", testNow))
	})

	t.Run("process lifecycle", func(t *testing.T) {
		m := newTestMovement(t, "")
		assert.Error(t, m.Start(testNow))

		require.NoError(t, m.Approve("mgr", testNow))
		require.NoError(t, m.Start(testNow))
		assert.Equal(t, MovementStatusInProgress, m.Status)
		assert.Equal(t, 1, m.AttemptCount)

		require.NoError(t, m.Fail("boom", testNow))
		assert.Equal(t, MovementStatusFailed, m.Status)
		assert.True(t, m.CanProcess())

		require.NoError(t, m.Start(testNow.Add(time.Minute)))
		assert.Empty(t, m.FailureReason)
		require.NoError(t, m.Complete(decimal.NullDecimal{}, testNow.Add(time.Minute)))
		assert.Equal(t, MovementStatusCompleted, m.Status)
		assert.Equal(t, 2, m.AttemptCount)
		assert.False(t, m.CanProcess())

		var types []string
		for _, e := range m.GetDomainEvents() {
			types = append(types, e.EventType())
		}
		assert.Equal(t, []string{EventTypeMovementFailed, EventTypeMovementCompleted}, types)
	})
}

func TestMovement_Effects(t *testing.T) {
	item := uuid.New()
	a, b := uuid.New(), uuid.New()

	transfer := &Movement{ItemID: item, Type: MovementTypeTransfer, Quantity: 20, FromLocationID: &a, ToLocationID: &b}
	effects := transfer.Effects()
	require.Len(t, effects, 2)
	assert.Equal(t, LocationDelta{LocationID: a, Delta: -20, Cause: StockChangeTransferOut}, effects[0])
	assert.Equal(t, LocationDelta{LocationID: b, Delta: 20, Cause: StockChangeTransferIn}, effects[1])
	assert.Equal(t, int64(0), transfer.SignedQuantity())
	assert.Equal(t, int64(-20), transfer.SignedQuantityAt(a))
	assert.Len(t, transfer.TouchedKeys(), 2)

	adjDown := &Movement{ItemID: item, Type: MovementTypeAdjustment, Quantity: 3, FromLocationID: &a}
	assert.Equal(t, int64(-3), adjDown.SignedQuantity())

	adjUp := &Movement{ItemID: item, Type: MovementTypeAdjustment, Quantity: 3, ToLocationID: &a}
	assert.Equal(t, int64(3), adjUp.SignedQuantity())

	out := &Movement{ItemID: item, Type: MovementTypeOut, Quantity: 4, FromLocationID: &b}
	assert.Equal(t, []uuid.UUID{b}, out.TouchedLocations())
}

func TestMovement_IsDue(t *testing.T) {
	m := newTestMovement(t, "")
	assert.True(t, m.IsDue(testNow))

	later := testNow.Add(time.Hour)
	m.ScheduledAt = &later
	assert.False(t, m.IsDue(testNow))
	assert.True(t, m.IsDue(later))
}
