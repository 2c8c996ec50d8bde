package http

import (
	"errors"
	"log/slog"
	"net/http"

	"billscan/internal/auth"
	"billscan/internal/services"
	"billscan/internal/storage"
)

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	paid, err := parsePaid(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bills, err := s.bills.List(r.Context(), auth.UserID(r.Context()), services.Query{
		Criteria: criteriaFromQuery(q),
		Paid:     paid,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill list error", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load bills")
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.bills.Summary(r.Context(), auth.UserID(r.Context()), criteriaFromQuery(r.URL.Query()))
	if err != nil {
		slog.ErrorContext(r.Context(), "Bill summary error", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleRequestSync answers 202 with the job to poll. A sync that is
// already queued or running is returned instead of a new one.
func (s *Server) handleRequestSync(w http.ResponseWriter, r *http.Request) {
	job, created, err := s.sync.Request(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "Sync request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "could not start sync")
		return
	}

	msg := "Sync started"
	if !created {
		msg = "Sync already in progress"
	}
	writeJSON(w, http.StatusAccepted, syncResponse{Message: msg, Job: job})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.sync.Status(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sync job not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Sync status error", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load sync job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
