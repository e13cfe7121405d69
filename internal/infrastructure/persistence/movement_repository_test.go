package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceipt(t *testing.T, itemID, locationID uuid.UUID, qty int64, priority inventory.MovementPriority, at time.Time) *inventory.Movement {
	t.Helper()
	m, err := inventory.NewMovement(inventory.MovementSpec{
		ItemID:       itemID,
		Type:         inventory.MovementTypeIn,
		Quantity:     qty,
		ToLocationID: ptrUUID(locationID),
		UnitCost:     decimal.NewNullDecimal(decimal.NewFromInt(2)),
		Priority:     priority,
		RequestedBy:  "clerk",
	}, at)
	require.NoError(t, err)
	return m
}

func completeMovement(t *testing.T, repo *GormMovementRepository, m *inventory.Movement, at time.Time) {
	t.Helper()
	ctx := context.Background()
	if m.Status == inventory.MovementStatusPending {
		require.NoError(t, m.Approve("lead", at))
		require.NoError(t, repo.Save(ctx, m))
	}
	claimed, err := repo.ClaimForProcessing(ctx, m.ID, inventory.ProcessableStatuses, at)
	require.NoError(t, err)
	require.True(t, claimed)

	reloaded, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.NoError(t, reloaded.Complete(reloaded.UnitCost, at))
	require.NoError(t, repo.Save(ctx, reloaded))
	*m = *reloaded
}

func TestGormMovementRepository_ClaimForProcessing(t *testing.T) {
	ctx := context.Background()

	t.Run("only the first claim wins", func(t *testing.T) {
		repo := NewGormMovementRepository(newSQLiteDB(t))
		m := newReceipt(t, uuid.New(), uuid.New(), 10, inventory.MovementPriorityUrgent, testNow)
		require.NoError(t, repo.Create(ctx, m))

		claimed, err := repo.ClaimForProcessing(ctx, m.ID, inventory.ProcessableStatuses, testNow)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.ClaimForProcessing(ctx, m.ID, inventory.ProcessableStatuses, testNow)
		require.NoError(t, err)
		assert.False(t, claimed)

		reloaded, err := repo.FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, inventory.MovementStatusInProgress, reloaded.Status)
		assert.Equal(t, 1, reloaded.AttemptCount)
		assert.Equal(t, m.Version+1, reloaded.Version)
		require.NotNil(t, reloaded.StartedAt)
	})

	t.Run("pending movements cannot be claimed", func(t *testing.T) {
		repo := NewGormMovementRepository(newSQLiteDB(t))
		m := newReceipt(t, uuid.New(), uuid.New(), 10, inventory.MovementPriorityNormal, testNow)
		require.NoError(t, repo.Create(ctx, m))

		claimed, err := repo.ClaimForProcessing(ctx, m.ID, inventory.ProcessableStatuses, testNow)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("is a single conditional update", func(t *testing.T) {
		db, mock, _ := newMockDB(t)
		repo := NewGormMovementRepository(db)

		mock.ExpectExec(`UPDATE "movements" SET .*"status"=.* WHERE id = \$\d+ AND status IN \(\$\d+,\$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		claimed, err := repo.ClaimForProcessing(ctx, uuid.New(), inventory.ProcessableStatuses, testNow)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormMovementRepository_Save(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMovementRepository(newSQLiteDB(t))
	m := newReceipt(t, uuid.New(), uuid.New(), 10, inventory.MovementPriorityNormal, testNow)
	require.NoError(t, repo.Create(ctx, m))

	stale := *m
	require.NoError(t, m.Approve("lead", testNow))
	require.NoError(t, repo.Save(ctx, m))

	require.NoError(t, stale.Reject("other", "duplicate", testNow))
	assert.ErrorIs(t, repo.Save(ctx, &stale), shared.ErrConcurrencyConflict)

	reloaded, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementStatusApproved, reloaded.Status)
	assert.Equal(t, "lead", reloaded.ApprovedBy)
}

func TestGormMovementRepository_FindCompletedByItem(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMovementRepository(newSQLiteDB(t))
	itemID, locationID := uuid.New(), uuid.New()

	late := newReceipt(t, itemID, locationID, 5, inventory.MovementPriorityUrgent, testNow)
	early := newReceipt(t, itemID, locationID, 7, inventory.MovementPriorityUrgent, testNow)
	pending := newReceipt(t, itemID, locationID, 9, inventory.MovementPriorityNormal, testNow)
	other := newReceipt(t, uuid.New(), locationID, 11, inventory.MovementPriorityUrgent, testNow)
	require.NoError(t, repo.CreateBatch(ctx, []*inventory.Movement{late, early, pending, other}))

	completeMovement(t, repo, early, testNow.Add(time.Hour))
	completeMovement(t, repo, late, testNow.Add(2*time.Hour))
	completeMovement(t, repo, other, testNow.Add(time.Hour))

	history, err := repo.FindCompletedByItem(ctx, itemID, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, early.ID, history[0].ID)
	assert.Equal(t, late.ID, history[1].ID)

	asOf := testNow.Add(time.Hour)
	bounded, err := repo.FindCompletedByItem(ctx, itemID, &asOf)
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, early.ID, bounded[0].ID)
}

func TestGormMovementRepository_FindDue(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMovementRepository(newSQLiteDB(t))
	itemID, locationID := uuid.New(), uuid.New()

	schedule := func(priority inventory.MovementPriority, at time.Time) *inventory.Movement {
		m := newReceipt(t, itemID, locationID, 1, priority, testNow)
		m.ScheduledAt = ptrTime(at)
		require.NoError(t, repo.Create(ctx, m))
		if m.Status == inventory.MovementStatusPending {
			require.NoError(t, m.Approve("lead", testNow))
			require.NoError(t, repo.Save(ctx, m))
		}
		return m
	}

	normal := schedule(inventory.MovementPriorityNormal, testNow.Add(-time.Hour))
	urgent := schedule(inventory.MovementPriorityUrgent, testNow.Add(-time.Minute))
	schedule(inventory.MovementPriorityHigh, testNow.Add(time.Hour))
	unscheduled := newReceipt(t, itemID, locationID, 1, inventory.MovementPriorityUrgent, testNow)
	require.NoError(t, repo.Create(ctx, unscheduled))

	due, err := repo.FindDue(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, urgent.ID, due[0].ID)
	assert.Equal(t, normal.ID, due[1].ID)
}

func TestGormMovementRepository_FindAllAndStuck(t *testing.T) {
	ctx := context.Background()
	repo := NewGormMovementRepository(newSQLiteDB(t))
	itemID, locationID := uuid.New(), uuid.New()

	m := newReceipt(t, itemID, locationID, 3, inventory.MovementPriorityUrgent, testNow)
	m.ReferenceNumber = "PO-1001"
	require.NoError(t, repo.Create(ctx, m))
	require.NoError(t, repo.Create(ctx, newReceipt(t, itemID, uuid.New(), 4, inventory.MovementPriorityNormal, testNow)))

	byLocation, total, err := repo.FindAll(ctx, inventory.MovementFilter{LocationID: &locationID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, m.ID, byLocation[0].ID)

	byRef, _, err := repo.FindAll(ctx, inventory.MovementFilter{Reference: "PO-1001", Status: inventory.MovementStatusApproved})
	require.NoError(t, err)
	require.Len(t, byRef, 1)

	claimed, err := repo.ClaimForProcessing(ctx, m.ID, inventory.ProcessableStatuses, testNow)
	require.NoError(t, err)
	require.True(t, claimed)

	stuck, err := repo.FindStuck(ctx, testNow.Add(15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, m.ID, stuck[0].ID)

	none, err := repo.FindStuck(ctx, testNow, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
