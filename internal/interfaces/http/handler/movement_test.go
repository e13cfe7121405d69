package handler

import (
	"net/http"
	"testing"

	appinv "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementHandler_SubmitApproveProcess(t *testing.T) {
	f := newAPIFixture(t)
	item, loc := uuid.New(), uuid.New()

	w := f.do(http.MethodPost, "/api/v1/movements", gin.H{
		"type":           "IN",
		"item_id":        item,
		"to_location_id": loc,
		"quantity":       40,
		"unit_cost":      "3.25",
	}, actor("clerk"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := testutil.DecodeData[appinv.MovementResponse](t, w)
	assert.Equal(t, "PENDING", m.Status)
	assert.Equal(t, "clerk", m.RequestedBy, "the actor header fills requested_by")

	w = f.do(http.MethodPost, "/api/v1/movements/"+m.ID.String()+"/process", nil, nil)
	testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INVALID_MOVEMENT_STATE")

	w = f.do(http.MethodPost, "/api/v1/movements/"+m.ID.String()+"/approve", nil, actor("manager"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "manager", testutil.DecodeData[appinv.MovementResponse](t, w).ApprovedBy)

	w = f.do(http.MethodPost, "/api/v1/movements/"+m.ID.String()+"/process", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", testutil.DecodeData[appinv.MovementResponse](t, w).Status)

	w = f.do(http.MethodGet, "/api/v1/stock-levels/"+item.String()+"/"+loc.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(40), testutil.DecodeData[appinv.StockLevelResponse](t, w).Quantity)

	w = f.do(http.MethodGet, "/api/v1/movements/"+m.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, testutil.DecodeData[appinv.MovementResponse](t, w).AttemptCount)
}

func TestMovementHandler_Submit_IdempotencyKey(t *testing.T) {
	f := newAPIFixture(t)
	item, loc := uuid.New(), uuid.New()
	body := gin.H{"type": "IN", "item_id": item, "to_location_id": loc, "quantity": 5}
	headers := map[string]string{IdempotencyKeyHeader: "po-77-line-1"}

	first := f.do(http.MethodPost, "/api/v1/movements", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	replay := f.do(http.MethodPost, "/api/v1/movements", body, headers)
	require.Equal(t, http.StatusOK, replay.Code, replay.Body.String())

	original := testutil.DecodeData[appinv.MovementResponse](t, first)
	replayed := testutil.DecodeData[appinv.MovementResponse](t, replay)
	assert.Equal(t, original.ID, replayed.ID)
	assert.True(t, replayed.Replayed)

	w := f.do(http.MethodGet, "/api/v1/movements?item_id="+item.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), testutil.JSONBody(t, w)["meta"].(map[string]any)["total"])
}

func TestMovementHandler_Submit_Errors(t *testing.T) {
	f := newAPIFixture(t)
	item, loc := uuid.New(), uuid.New()

	t.Run("validation errors name the field", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements", gin.H{"type": "GIFT", "item_id": item, "quantity": 0}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

		errInfo := testutil.JSONBody(t, w)["error"].(map[string]any)
		fields := map[string]bool{}
		for _, raw := range errInfo["fields"].([]any) {
			fields[raw.(map[string]any)["field"].(string)] = true
		}
		assert.True(t, fields["type"])
		assert.True(t, fields["quantity"])
	})

	t.Run("malformed json", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements", "not-an-object", nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "INVALID_JSON")
	})

	t.Run("shape errors are domain errors", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements", gin.H{"type": "IN", "item_id": item, "quantity": 1}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "INVALID_MOVEMENT")
	})

	t.Run("issuing more than is on hand", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements", gin.H{
			"type": "OUT", "item_id": item, "from_location_id": loc, "quantity": 3,
		}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK")
	})

	t.Run("unknown movement", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/movements/"+uuid.NewString(), nil, nil)
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("bad id", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/movements/42", nil, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("approve without an operator", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements", gin.H{"type": "IN", "item_id": item, "to_location_id": loc, "quantity": 1}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		id := testutil.DecodeData[appinv.MovementResponse](t, w).ID

		w = f.do(http.MethodPost, "/api/v1/movements/"+id.String()+"/approve", nil, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestMovementHandler_RejectAndCancel(t *testing.T) {
	f := newAPIFixture(t)
	item, loc := uuid.New(), uuid.New()
	submit := func() uuid.UUID {
		w := f.do(http.MethodPost, "/api/v1/movements", gin.H{"type": "IN", "item_id": item, "to_location_id": loc, "quantity": 2}, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return testutil.DecodeData[appinv.MovementResponse](t, w).ID
	}

	id := submit()
	w := f.do(http.MethodPost, "/api/v1/movements/"+id.String()+"/reject", gin.H{"reason": "wrong supplier"}, actor("manager"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := testutil.DecodeData[appinv.MovementResponse](t, w)
	assert.Equal(t, "REJECTED", rejected.Status)
	assert.Equal(t, "wrong supplier", rejected.RejectionReason)

	w = f.do(http.MethodPost, "/api/v1/movements/"+id.String()+"/cancel", nil, actor("clerk"))
	testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INVALID_MOVEMENT_STATE")

	id = submit()
	w = f.do(http.MethodPost, "/api/v1/movements/"+id.String()+"/cancel", nil, actor("clerk"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", testutil.DecodeData[appinv.MovementResponse](t, w).Status)
}

func TestMovementHandler_SubmitBulk(t *testing.T) {
	f := newAPIFixture(t)
	item, a, b := uuid.New(), uuid.New(), uuid.New()
	f.receive(item, a, 10)
	body := gin.H{"movements": []gin.H{
		{"type": "IN", "item_id": item, "to_location_id": b, "quantity": 5},
		{"type": "OUT", "item_id": item, "from_location_id": a, "quantity": 50},
	}}

	t.Run("atomic query flag rejects the whole batch", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements/bulk?atomic=true", body, nil)
		testutil.AssertErrorResponse(t, w, http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK")

		details := testutil.JSONBody(t, w)["error"].(map[string]any)["details"].(map[string]any)
		assert.Equal(t, float64(1), details["index"])
	})

	t.Run("non-atomic keeps the valid items", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements/bulk", body, actor("importer"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := testutil.DecodeData[appinv.BulkSubmitResponse](t, w)
		assert.False(t, resp.Atomic)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, 1, resp.Failed)
		require.NotNil(t, resp.Results[0].Movement)
		assert.Equal(t, "importer", resp.Results[0].Movement.RequestedBy)
		require.NotNil(t, resp.Results[1].Error)
		assert.Equal(t, "INSUFFICIENT_STOCK", resp.Results[1].Error.Code)
	})

	t.Run("invalid atomic flag", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements/bulk?atomic=maybe", body, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("empty batch", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/movements/bulk", gin.H{"movements": []gin.H{}}, nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestMovementHandler_List(t *testing.T) {
	f := newAPIFixture(t)
	item, loc := uuid.New(), uuid.New()
	f.receive(item, loc, 3)
	f.receive(uuid.New(), loc, 4)

	w := f.do(http.MethodGet, "/api/v1/movements?item_id="+item.String()+"&status=COMPLETED", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := testutil.DecodeData[[]appinv.MovementResponse](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, item, items[0].ItemID)

	w = f.do(http.MethodGet, "/api/v1/movements?location_id="+loc.String()+"&page_size=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := testutil.JSONBody(t, w)["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["total"])
	assert.Equal(t, float64(2), meta["total_pages"])

	w = f.do(http.MethodGet, "/api/v1/movements?status=LOST", nil, nil)
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = f.do(http.MethodGet, "/api/v1/movements?item_id=nope", nil, nil)
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "BAD_REQUEST")
}
