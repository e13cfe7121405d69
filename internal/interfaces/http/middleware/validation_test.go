package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineInput struct {
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
	Type     string `json:"type" binding:"required,oneof=IN OUT"`
}

type bulkInput struct {
	Reference string      `json:"reference" binding:"max=5"`
	Lines     []lineInput `json:"lines" binding:"required,min=1,dive"`
}

func bindRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req bulkInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})
	return router
}

func postJSON(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-9")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError(t *testing.T) {
	router := bindRouter()

	t.Run("lists rejected fields by json path", func(t *testing.T) {
		w := postJSON(router, `{"reference":"too-long-ref","lines":[{"quantity":1,"type":"IN"},{"quantity":0,"type":"SIDEWAYS"}]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, "req-9", resp.Error.RequestID)

		messages := map[string]string{}
		for _, f := range resp.Error.Fields {
			messages[f.Field] = f.Message
		}
		assert.Equal(t, "Must be at most 5 characters", messages["reference"])
		assert.Equal(t, "This field is required", messages["lines[1].quantity"])
		assert.Equal(t, "Must be one of: IN OUT", messages["lines[1].type"])
		assert.Len(t, messages, 3)
	})

	t.Run("empty slice", func(t *testing.T) {
		w := postJSON(router, `{"lines":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Must contain at least 1 entries")
	})

	t.Run("malformed json", func(t *testing.T) {
		w := postJSON(router, `{"lines":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInvalidJSON)
	})

	t.Run("valid input", func(t *testing.T) {
		w := postJSON(router, `{"lines":[{"quantity":3,"type":"OUT"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
