// Package handlers implements the HTTP handlers for the Molly API.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServiceName identifies this API in the root status response
const ServiceName = "molly-security-assistant"

// StatusHandler creates the handler for GET / — a liveness probe that also
// names the service.
func StatusHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": ServiceName,
		})
	}
}

// errorResponse writes a consistent JSON error body
func errorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON encodes a response body; encoding failures are best-effort
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
