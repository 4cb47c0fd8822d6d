package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hivelog/hivesync/internal/replica/remote/httpstore"
)

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpstore.ErrorResponse{
		Error: httpstore.APIError{Code: code, Message: message},
	})
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}
