package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"error"`
}

func newAPIError(code int, body []byte) *APIError {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && (apiErr.Message != "" || apiErr.Status != "") {
		apiErr.StatusCode = code
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(code)
		}
		return &apiErr
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &APIError{StatusCode: code, Message: msg}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnavailable returns true if the server or a backend is not ready.
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// IsTooLarge returns true if an uploaded block exceeded the server limit.
func (e *APIError) IsTooLarge() bool {
	return e.StatusCode == http.StatusRequestEntityTooLarge
}
