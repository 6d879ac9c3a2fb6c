package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/service"
)

// StatsHandler serves the dashboard aggregates, as a one-shot read and as a
// server-sent event stream for clients that cannot hold a websocket.
type StatsHandler struct {
	stats    *service.StatsService
	logger   *slog.Logger
	interval time.Duration
}

// NewStatsHandler creates a new stats handler. interval is the SSE refresh
// period.
func NewStatsHandler(stats *service.StatsService, interval time.Duration, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatsHandler{stats: stats, logger: logger, interval: interval}
}

// Register wires the handler's routes onto mux.
func (h *StatsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.Dashboard)
	mux.HandleFunc("GET /api/stats/stream", h.Stream)
}

// Dashboard handles GET /api/stats.
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.stats.Dashboard(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Stream handles GET /api/stats/stream: the caller's dashboard stats as SSE,
// refreshed on a fixed interval until the client disconnects.
func (h *StatsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// First event immediately, then on every tick.
	if !h.emit(w, flusher, r, id) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !h.emit(w, flusher, r, id) {
				return
			}
		}
	}
}

func (h *StatsHandler) emit(w http.ResponseWriter, flusher http.Flusher, r *http.Request, id security.Identity) bool {
	stats, err := h.stats.Dashboard(r.Context(), id)
	if err != nil {
		h.logger.Error("stats stream read failed", slog.String("error", err.Error()))
		return false
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
