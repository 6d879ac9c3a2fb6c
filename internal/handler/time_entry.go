package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/service"
)

// StartEntryRequest represents a request to start tracking.
type StartEntryRequest struct {
	ProjectID   *string    `json:"projectId,omitempty"`
	Description string     `json:"description,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

// CorrectEntryRequest represents an administrative edit of a stopped entry.
// Omitted fields are left alone; an empty projectId clears the project.
type CorrectEntryRequest struct {
	DurationSeconds *int64  `json:"durationSeconds,omitempty"`
	Description     *string `json:"description,omitempty"`
	ProjectID       *string `json:"projectId,omitempty"`
}

// EntryResponse is the wire shape of a time entry. LiveSeconds includes the
// uncommitted running interval; DurationSeconds is what the store holds.
type EntryResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	ProjectID       *string    `json:"projectId,omitempty"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
	LiveSeconds     int64      `json:"liveSeconds"`
}

// TimeEntryHandler handles the time-entry lifecycle endpoints.
type TimeEntryHandler struct {
	entries *service.EntryService
	logger  *slog.Logger
}

// NewTimeEntryHandler creates a new time entry handler.
func NewTimeEntryHandler(entries *service.EntryService, logger *slog.Logger) *TimeEntryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeEntryHandler{entries: entries, logger: logger}
}

// Register wires the handler's routes onto mux.
func (h *TimeEntryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/time-entries", h.Start)
	mux.HandleFunc("GET /api/time-entries", h.List)
	mux.HandleFunc("GET /api/time-entries/active", h.Active)
	mux.HandleFunc("GET /api/time-entries/{id}", h.Get)
	mux.HandleFunc("PATCH /api/time-entries/{id}", h.Correct)
	mux.HandleFunc("PUT /api/time-entries/{id}/pause", h.Pause)
	mux.HandleFunc("PUT /api/time-entries/{id}/resume", h.Resume)
	mux.HandleFunc("PUT /api/time-entries/{id}/stop", h.Stop)
}

// Start handles POST /api/time-entries.
func (h *TimeEntryHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req StartEntryRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	entry, err := h.entries.Start(r.Context(), id, service.StartOptions{
		ProjectID:   req.ProjectID,
		Description: req.Description,
		StartedAt:   req.StartedAt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(entry))
}

// Pause handles PUT /api/time-entries/{id}/pause.
func (h *TimeEntryHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.entries.Pause)
}

// Resume handles PUT /api/time-entries/{id}/resume.
func (h *TimeEntryHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.entries.Resume)
}

// Stop handles PUT /api/time-entries/{id}/stop.
func (h *TimeEntryHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.entries.Stop)
}

func (h *TimeEntryHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, security.Identity, string) (*domain.TimeEntry, error),
) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entry, err := op(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(entry))
}

// Active handles GET /api/time-entries/active?user=. A free slot is a 404,
// not an empty body: clients poll this to decide whether to show "start" or
// the running timer. The user filter is for elevated callers.
func (h *TimeEntryHandler) Active(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entry, err := h.entries.GetActiveFor(r.Context(), id, r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(entry))
}

// Get handles GET /api/time-entries/{id}.
func (h *TimeEntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	entry, err := h.entries.Get(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(entry))
}

// List handles GET /api/time-entries?user=&project=&limit=.
func (h *TimeEntryHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter := domain.EntryFilter{
		UserID:    r.URL.Query().Get("user"),
		ProjectID: r.URL.Query().Get("project"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	entries, err := h.entries.List(r.Context(), id, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, h.toResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": items})
}

// Correct handles PATCH /api/time-entries/{id}.
func (h *TimeEntryHandler) Correct(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CorrectEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	entry, err := h.entries.Correct(r.Context(), id, r.PathValue("id"), service.Correction{
		DurationSeconds: req.DurationSeconds,
		Description:     req.Description,
		ProjectID:       req.ProjectID,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(entry))
}

func (h *TimeEntryHandler) toResponse(e *domain.TimeEntry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		UserID:          e.UserID,
		ProjectID:       e.ProjectID,
		Description:     e.Description,
		Status:          string(e.Status),
		StartedAt:       e.StartedAt,
		EndedAt:         e.EndedAt,
		DurationSeconds: e.DurationSeconds,
		LiveSeconds:     h.entries.LiveSeconds(e),
	}
}
