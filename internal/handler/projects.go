package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security"
)

// ProjectResponse is the wire shape of a project.
type ProjectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateProjectRequest represents a request to create a project.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// ProjectsHandler handles project listing and creation. The listing goes
// through the tenant cache; creation invalidates it.
type ProjectsHandler struct {
	projects domain.ProjectRepository
	cache    *cache.TenantCache
	elevated security.Capability
	logger   *slog.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(
	projects domain.ProjectRepository,
	tenantCache *cache.TenantCache,
	elevated security.Capability,
	logger *slog.Logger,
) *ProjectsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if elevated == nil {
		elevated = security.DefaultElevated
	}
	return &ProjectsHandler{projects: projects, cache: tenantCache, elevated: elevated, logger: logger}
}

// Register wires the handler's routes onto mux.
func (h *ProjectsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("POST /api/projects", h.Create)
}

// List handles GET /api/projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var items []ProjectResponse
	key := cache.ProjectsKey(id.TenantID)
	if !h.cache.GetJSON(r.Context(), key, &items) {
		projects, err := h.projects.ListByTenant(r.Context(), id.TenantID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items = make([]ProjectResponse, 0, len(projects))
		for _, p := range projects {
			items = append(items, ProjectResponse{
				ID:        p.ID,
				Name:      p.Name,
				Archived:  p.Archived,
				CreatedAt: p.CreatedAt,
			})
		}
		h.cache.SetJSON(r.Context(), key, items)
	}

	writeJSON(w, http.StatusOK, map[string]any{"projects": items})
}

// Create handles POST /api/projects. Only elevated roles may create
// projects.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.elevated(id.Role) {
		writeError(w, h.logger, domain.ErrForbidden)
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, h.logger, &domain.ValidationError{Field: "name", Reason: "required"})
		return
	}

	project := &domain.Project{
		ID:       uuid.NewString(),
		TenantID: id.TenantID,
		Name:     name,
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.cache.InvalidateTenant(r.Context(), id.TenantID)

	writeJSON(w, http.StatusCreated, ProjectResponse{
		ID:        project.ID,
		Name:      project.Name,
		Archived:  project.Archived,
		CreatedAt: project.CreatedAt,
	})
}
