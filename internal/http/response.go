package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"billscan/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

// syncResponse is the body of POST /api/sync.
type syncResponse struct {
	Message string       `json:"message"`
	Job     core.SyncJob `json:"job"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
