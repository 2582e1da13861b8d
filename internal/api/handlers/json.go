package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/studywise/backend/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeAppError maps a pipeline error onto its HTTP status and a safe
// client message. Internal details never reach the response body.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": apperr.Message(err)})
}
