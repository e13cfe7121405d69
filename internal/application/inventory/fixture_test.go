package inventory_test

import (
	"context"
	"testing"
	"time"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/strategy"
	"github.com/erp/stockledger/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ledgerFixture wires every service against one private SQLite database
type ledgerFixture struct {
	t            *testing.T
	ctx          context.Context
	clock        *testutil.ManualClock
	repos        *persistence.Repositories
	events       *testutil.RecordingPublisher
	idempotency  *cache.InMemoryIdempotencyStore
	ledger       *appinv.StockLedger
	reservations *appinv.ReservationManager
	levels       *appinv.StockLevelService
	batches      *appinv.BatchTracker
	valuation    *appinv.ValuationEngine
	alerts       *appinv.AlertEngine
}

func newLedgerFixture(t *testing.T, opts ...persistence.RepositoryOption) *ledgerFixture {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	repos := persistence.NewRepositories(db, opts...)
	clock := testutil.NewManualClock(testutil.ReferenceTime)
	events := testutil.NewRecordingPublisher()
	logger := nopLogger()

	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	ledger := appinv.NewStockLedger(repos.Scope, repos.Movements, repos.StockLevels, clock,
		appinv.LedgerOptions{BulkMaxItems: 10, BulkConcurrency: 4}, logger)
	ledger.SetEventPublisher(events)
	ledger.SetIdempotencyStore(store)

	reservations := appinv.NewReservationManager(repos.Scope, repos.Reservations, clock, 0, logger)
	reservations.SetEventPublisher(events)

	levels := appinv.NewStockLevelService(repos.StockLevels, repos.Scope, clock, logger)
	levels.SetEventPublisher(events)

	batches := appinv.NewBatchTracker(repos.Scope, repos.Batches, repos.BatchHistory, clock, logger)
	batches.SetEventPublisher(events)

	registry, err := strategy.NewRegistryWithDefaults("")
	require.NoError(t, err)
	valuation := appinv.NewValuationEngine(repos.Movements, repos.Valuations, registry, clock, logger)

	alerts := appinv.NewAlertEngine(repos.Scope, repos.StockLevels, repos.Batches, repos.Alerts, clock,
		appinv.DefaultAlertOptions(), logger)
	alerts.SetEventPublisher(events)

	return &ledgerFixture{
		t:            t,
		ctx:          context.Background(),
		clock:        clock,
		repos:        repos,
		events:       events,
		idempotency:  store,
		ledger:       ledger,
		reservations: reservations,
		levels:       levels,
		batches:      batches,
		valuation:    valuation,
		alerts:       alerts,
	}
}

// process submits an URGENT movement and applies it immediately
func (f *ledgerFixture) process(req appinv.SubmitMovementRequest) *appinv.MovementResponse {
	f.t.Helper()

	req.Priority = "URGENT"
	m, err := f.ledger.Submit(f.ctx, req)
	require.NoError(f.t, err)
	done, err := f.ledger.Process(f.ctx, m.ID)
	require.NoError(f.t, err)
	return done
}

func (f *ledgerFixture) receive(itemID, locationID uuid.UUID, qty int64, unitCost string) *appinv.MovementResponse {
	f.t.Helper()
	return f.process(appinv.SubmitMovementRequest{
		Type:         "IN",
		ItemID:       itemID,
		ToLocationID: &locationID,
		Quantity:     qty,
		UnitCost:     costPtr(unitCost),
	})
}

func (f *ledgerFixture) issue(itemID, locationID uuid.UUID, qty int64) *appinv.MovementResponse {
	f.t.Helper()
	return f.process(appinv.SubmitMovementRequest{
		Type:           "OUT",
		ItemID:         itemID,
		FromLocationID: &locationID,
		Quantity:       qty,
	})
}

func (f *ledgerFixture) level(itemID, locationID uuid.UUID) *appinv.StockLevelResponse {
	f.t.Helper()
	level, err := f.levels.Get(f.ctx, itemID, locationID)
	require.NoError(f.t, err)
	return level
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func costPtr(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d := decimal.RequireFromString(s)
	return &d
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
