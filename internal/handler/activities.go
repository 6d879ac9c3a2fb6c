package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
)

// ActivityResponse is the wire shape of one transition record.
type ActivityResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	EntryID    string    `json:"entryId"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ActivitiesHandler serves the append-only transition feed.
type ActivitiesHandler struct {
	activities domain.ActivityRepository
	logger     *slog.Logger
}

// NewActivitiesHandler creates a new activities handler.
func NewActivitiesHandler(activities domain.ActivityRepository, logger *slog.Logger) *ActivitiesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivitiesHandler{activities: activities, logger: logger}
}

// Register wires the handler's routes onto mux.
func (h *ActivitiesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/activities", h.List)
	mux.HandleFunc("GET /api/time-entries/{id}/activities", h.ListByEntry)
}

// List handles GET /api/activities?limit=.
func (h *ActivitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	activities, err := h.activities.ListByTenant(r.Context(), id.TenantID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": toActivityResponses(activities)})
}

// ListByEntry handles GET /api/time-entries/{id}/activities.
func (h *ActivitiesHandler) ListByEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	activities, err := h.activities.ListByEntry(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": toActivityResponses(activities)})
}

func toActivityResponses(activities []*domain.Activity) []ActivityResponse {
	items := make([]ActivityResponse, 0, len(activities))
	for _, a := range activities {
		items = append(items, ActivityResponse{
			ID:         a.ID,
			UserID:     a.UserID,
			EntryID:    a.EntryID,
			Kind:       string(a.Kind),
			OccurredAt: a.OccurredAt,
		})
	}
	return items
}
