package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/dittocache/pkg/cache"
	"github.com/marmos91/dittocache/pkg/store/block"
)

// Response represents a standard API response wrapper.
//
// All API responses follow this structure for consistency:
//   - Status indicates the overall result ("healthy", "unhealthy", "ok", "error")
//   - Timestamp provides response time for debugging and caching
//   - Data contains the response payload (optional)
//   - Error contains error details when Status indicates failure (optional)
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func healthyResponse(data interface{}) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

func unhealthyResponseWithData(data interface{}) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Data: data}
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errorResponse(errMsg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse(msg))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorResponse(msg))
}

// RequestEntityTooLarge writes a 413 error response.
func RequestEntityTooLarge(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(msg))
}

// InternalServerError writes a 500 error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, errorResponse(msg))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusServiceUnavailable, errorResponse(msg))
}

// statusFor maps a cache or backend error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, block.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, block.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, cache.ErrCacheClosed), errors.Is(err, block.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with the status code statusFor picks.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse(err.Error()))
}
