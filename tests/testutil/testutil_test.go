package testutil

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteDB_MigratesLedgerTables(t *testing.T) {
	db := NewSQLiteDB(t)

	for _, table := range []string{"stock_levels", "movements", "reservations", "batches", "batch_history", "valuation_records", "stock_alerts"} {
		assert.True(t, db.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestNewMockDB(t *testing.T) {
	mockDB := NewMockDB(t)

	assert.NotNil(t, mockDB.DB)
	assert.NotNil(t, mockDB.Mock)
	mockDB.ExpectationsWereMet(t)
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(ReferenceTime)
	assert.Equal(t, ReferenceTime, clock.Now())

	clock.Advance(90 * time.Minute)
	assert.Equal(t, ReferenceTime.Add(90*time.Minute), clock.Now())

	clock.Set(ReferenceTime)
	assert.Equal(t, ReferenceTime, clock.Now())
}

func TestNewTestUUID_Deterministic(t *testing.T) {
	assert.Equal(t, NewTestUUID("item"), NewTestUUID("item"))
	assert.NotEqual(t, NewTestUUID("item"), NewTestUUID("location"))
}

func TestRecordingPublisher(t *testing.T) {
	p := NewRecordingPublisher()
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, NewTestEvent("A"), NewTestEvent("B"), NewTestEvent("A")))
	assert.Len(t, p.Events(), 3)
	assert.Len(t, p.OfType("A"), 2)

	boom := errors.New("boom")
	p.SetError(boom)
	assert.ErrorIs(t, p.Publish(ctx, NewTestEvent("C")), boom)

	p.Reset()
	assert.Empty(t, p.Events())
}

func TestMockEventHandler(t *testing.T) {
	handler := NewMockEventHandler("TestEvent")
	event := NewTestEvent("TestEvent")

	require.NoError(t, handler.Handle(context.Background(), event))
	assert.Equal(t, 1, handler.HandledCount())
	assert.Equal(t, event, handler.Handled()[0])

	handler.SetError(assert.AnError)
	assert.Equal(t, assert.AnError, handler.Handle(context.Background(), event))
}

func TestPerformRequest_DecodeData(t *testing.T) {
	engine := gin.New()
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]string
		_ = c.ShouldBindJSON(&body)
		c.JSON(http.StatusOK, gin.H{"success": true, "data": body})
	})
	engine.GET("/fail", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "NOT_FOUND"}})
	})

	w := PerformRequest(t, engine, http.MethodPost, "/echo", map[string]string{"k": "v"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"k": "v"}, DecodeData[map[string]string](t, w))

	w = PerformRequest(t, engine, http.MethodGet, "/fail", nil, nil)
	AssertErrorResponse(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestRequireEventually(t *testing.T) {
	calls := 0
	RequireEventually(t, func() bool {
		calls++
		return calls >= 3
	}, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, calls, 3)
}
