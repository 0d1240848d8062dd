// Package api exposes a read-only operational view of the pipeline:
// queue status, pending approvals and quarantined loads. All writes go
// through the CLIs; the API is for dashboards and monitors.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/consciousfounders/dental-leads-etl/internal/domain"
	"github.com/consciousfounders/dental-leads-etl/internal/quarantine"
	"github.com/consciousfounders/dental-leads-etl/internal/queue"
)

// Handlers holds the services the API reads from.
type Handlers struct {
	db         *sql.DB
	queue      *queue.Service
	quarantine *quarantine.Service
}

// NewHandlers creates the API handler set.
func NewHandlers(db *sql.DB, q *queue.Service, qr *quarantine.Service) *Handlers {
	return &Handlers{db: db, queue: q, quarantine: qr}
}

// HealthCheck reports process and database health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// QueueStatus returns the export queue summary.
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.queue.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// PendingExports returns exports awaiting approval, optionally filtered
// by ?destination= and bounded by ?limit=.
func (h *Handlers) PendingExports(w http.ResponseWriter, r *http.Request) {
	dest := domain.Destination(r.URL.Query().Get("destination"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	pending, err := h.queue.PendingApproval(r.Context(), dest, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pending == nil {
		pending = []domain.ExportRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(pending),
		"exports": pending,
	})
}

// QuarantinedLoads returns all quarantined loads.
func (h *Handlers) QuarantinedLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := h.quarantine.ListQuarantined(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if loads == nil {
		loads = []domain.Load{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(loads),
		"loads": loads,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
