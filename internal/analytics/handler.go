package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// History lists persisted snapshots, newest first.
type History interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

type Handler struct {
	aggregator *Aggregator
	history    History
	logger     *slog.Logger
}

// NewHandler serves live stats; history may be nil when persistence is off.
func NewHandler(aggregator *Aggregator, history History) *Handler {
	return &Handler{
		aggregator: aggregator,
		history:    history,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics persistence is disabled"})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}
	snapshots, err := h.history.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing analytics snapshots failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "analytics history unavailable"})
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
