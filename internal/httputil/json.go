// Package httputil holds small helpers for JSON responses.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/jrschumacher/authsync/internal/logger"
)

// ErrorResponse is the body written by WriteError.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteError writes a JSON error body and logs it.
func WriteError(w http.ResponseWriter, status int, message string, logFields ...any) {
	WriteJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})

	logFields = append([]any{"status", status, "message", message}, logFields...)
	logger.Warn("HTTP error response", logFields...)
}
