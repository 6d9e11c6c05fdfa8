package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/andyleap/oidcflow/internal/models"
)

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}
