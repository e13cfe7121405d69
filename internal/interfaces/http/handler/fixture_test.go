package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/strategy"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// apiFixture serves every ledger endpoint from one private SQLite database
type apiFixture struct {
	t      *testing.T
	engine *gin.Engine
	clock  *testutil.ManualClock

	ledger       *appinv.StockLedger
	reservations *appinv.ReservationManager
	levels       *appinv.StockLevelService
	batches      *appinv.BatchTracker
	alerts       *appinv.AlertEngine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	repos := persistence.NewRepositories(testutil.NewSQLiteDB(t))
	clock := testutil.NewManualClock(testutil.ReferenceTime)
	logger := zap.NewNop()

	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	ledger := appinv.NewStockLedger(repos.Scope, repos.Movements, repos.StockLevels, clock,
		appinv.LedgerOptions{BulkMaxItems: 10, BulkConcurrency: 2}, logger)
	ledger.SetIdempotencyStore(store)
	reservations := appinv.NewReservationManager(repos.Scope, repos.Reservations, clock, 0, logger)
	levels := appinv.NewStockLevelService(repos.StockLevels, repos.Scope, clock, logger)
	batches := appinv.NewBatchTracker(repos.Scope, repos.Batches, repos.BatchHistory, clock, logger)
	registry, err := strategy.NewRegistryWithDefaults("")
	require.NoError(t, err)
	valuation := appinv.NewValuationEngine(repos.Movements, repos.Valuations, registry, clock, logger)
	alerts := appinv.NewAlertEngine(repos.Scope, repos.StockLevels, repos.Batches, repos.Alerts, clock,
		appinv.DefaultAlertOptions(), logger)

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Actor())
	api := engine.Group("/api/v1")
	for _, r := range []interface{ RegisterRoutes(*gin.RouterGroup) }{
		NewMovementHandler(ledger),
		NewReservationHandler(reservations),
		NewStockLevelHandler(levels),
		NewBatchHandler(batches, 7),
		NewValuationHandler(valuation),
		NewAlertHandler(alerts),
	} {
		r.RegisterRoutes(api)
	}

	return &apiFixture{
		t:            t,
		engine:       engine,
		clock:        clock,
		ledger:       ledger,
		reservations: reservations,
		levels:       levels,
		batches:      batches,
		alerts:       alerts,
	}
}

func (f *apiFixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	f.t.Helper()
	return testutil.PerformRequest(f.t, f.engine, method, path, body, headers)
}

// receive books an URGENT receipt so the pair has stock to work with
func (f *apiFixture) receive(item, loc uuid.UUID, qty int64) {
	f.t.Helper()
	cost := decimal.NewFromInt(2)
	m, err := f.ledger.Submit(context.Background(), appinv.SubmitMovementRequest{
		Type: "IN", ItemID: item, ToLocationID: &loc, Quantity: qty, UnitCost: &cost, Priority: "URGENT",
	})
	require.NoError(f.t, err)
	_, err = f.ledger.Process(context.Background(), m.ID)
	require.NoError(f.t, err)
}

func actor(name string) map[string]string {
	return map[string]string{middleware.ActorHeader: name}
}
