package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rowanhart/aircloud/internal/shadow"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeNotConnected = "not_connected"
	ErrCodeRejected     = "rejected_by_cloud"
	ErrCodeTimeout      = "request_timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeSessionError maps shadow session errors onto HTTP statuses:
// disconnected and breaker-open are 503, a cloud rejection is 502, a
// request timeout is 504, and a superseded request is 409.
func writeSessionError(w http.ResponseWriter, err error) {
	var rejection *shadow.RejectionError

	switch {
	case errors.Is(err, shadow.ErrNotConnected), errors.Is(err, shadow.ErrCircuitOpen),
		errors.Is(err, shadow.ErrDisconnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConnected, err.Error())
	case errors.As(err, &rejection):
		writeError(w, http.StatusBadGateway, ErrCodeRejected, rejection.Error())
	case errors.Is(err, shadow.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, shadow.ErrRequestSuperseded):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
