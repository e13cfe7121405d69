package dto

import (
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
)

// Transport-level error codes. Domain codes come from the shared package
// and are passed through unchanged.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRouteNotFound   = "ROUTE_NOT_FOUND"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeTimeout         = "REQUEST_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeInvalidJSON:           http.StatusBadRequest,
	shared.CodeInvalidInput:      http.StatusBadRequest,
	shared.CodeValidation:        http.StatusBadRequest,
	shared.CodeInvalidMovement:   http.StatusBadRequest,
	shared.CodeMissingExpiryDate: http.StatusBadRequest,

	// Resource errors
	shared.CodeNotFound:            http.StatusNotFound,
	ErrCodeRouteNotFound:           http.StatusNotFound,
	shared.CodeAlreadyExists:       http.StatusConflict,
	shared.CodeDuplicateBatch:      http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	shared.CodeInvalidState:               http.StatusUnprocessableEntity,
	shared.CodeInvalidMovementState:       http.StatusUnprocessableEntity,
	shared.CodeInvalidReservationState:    http.StatusUnprocessableEntity,
	shared.CodeInsufficientStock:          http.StatusUnprocessableEntity,
	shared.CodeInsufficientAvailableStock: http.StatusUnprocessableEntity,

	// Transport
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
