package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
)

// MemoryEntryRepository is an in-memory EntryRepository with the same
// atomicity contract as the Postgres one: a single mutex makes the guard
// check and insert indivisible and serializes transitions per entry. It
// backs tests and local development without a database.
type MemoryEntryRepository struct {
	mu         sync.Mutex
	entries    map[string]*domain.TimeEntry
	activities []*domain.Activity
}

// NewMemoryEntryRepository creates an empty in-memory repository.
func NewMemoryEntryRepository() *MemoryEntryRepository {
	return &MemoryEntryRepository{entries: map[string]*domain.TimeEntry{}}
}

func (r *MemoryEntryRepository) TryStart(_ context.Context, entry *domain.TimeEntry, act *domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.TenantID == entry.TenantID && e.UserID == entry.UserID && e.Active() {
			return &domain.ConflictError{ActiveEntryID: e.ID}
		}
	}

	cp := *entry
	r.entries[entry.ID] = &cp
	if act != nil {
		a := *act
		r.activities = append(r.activities, &a)
	}
	return nil
}

func (r *MemoryEntryRepository) Transition(_ context.Context, tenantID, entryID string, fn func(*domain.TimeEntry) (*domain.Activity, error)) (*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.entries[entryID]
	if !ok || stored.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}

	working := *stored
	act, err := fn(&working)
	if err != nil {
		return nil, err
	}

	working.UpdatedAt = time.Now()
	r.entries[entryID] = &working
	if act != nil {
		a := *act
		r.activities = append(r.activities, &a)
	}
	result := working
	return &result, nil
}

func (r *MemoryEntryRepository) GetByID(_ context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[entryID]
	if !ok || e.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryEntryRepository) GetActive(_ context.Context, tenantID, userID string) (*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.TenantID == tenantID && e.UserID == userID && e.Active() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MemoryEntryRepository) List(_ context.Context, tenantID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.TimeEntry
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.ProjectID != "" && (e.ProjectID == nil || *e.ProjectID != filter.ProjectID) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryEntryRepository) Correct(_ context.Context, tenantID string, entry *domain.TimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.entries[entry.ID]
	if !ok || stored.TenantID != tenantID || stored.Status != domain.StatusStopped {
		return domain.ErrNotFound
	}
	stored.DurationSeconds = entry.DurationSeconds
	stored.ProjectID = entry.ProjectID
	stored.Description = entry.Description
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryEntryRepository) ListStaleActive(_ context.Context, cutoff time.Time) ([]*domain.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.TimeEntry
	for _, e := range r.entries {
		if e.Active() && e.StartedAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryEntryRepository) CountActive(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.Active() {
			count++
		}
	}
	return count, nil
}

// Activities implements domain.ActivityRepository over the same store.
func (r *MemoryEntryRepository) ListByTenant(_ context.Context, tenantID string, limit int) ([]*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Activity
	for i := len(r.activities) - 1; i >= 0; i-- {
		if r.activities[i].TenantID != tenantID {
			continue
		}
		cp := *r.activities[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryEntryRepository) ListByEntry(_ context.Context, tenantID, entryID string) ([]*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Activity
	for _, a := range r.activities {
		if a.TenantID == tenantID && a.EntryID == entryID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryProjectRepository is an in-memory ProjectRepository for tests.
type MemoryProjectRepository struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

func NewMemoryProjectRepository() *MemoryProjectRepository {
	return &MemoryProjectRepository{projects: map[string]*domain.Project{}}
}

func (r *MemoryProjectRepository) Create(_ context.Context, project *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.projects {
		if p.TenantID == project.TenantID && p.Name == project.Name {
			return &domain.ValidationError{Field: "name", Reason: "project name already exists"}
		}
	}
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	cp := *project
	r.projects[project.ID] = &cp
	return nil
}

func (r *MemoryProjectRepository) GetByID(_ context.Context, tenantID, id string) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok || p.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProjectRepository) ListByTenant(_ context.Context, tenantID string) ([]*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Project
	for _, p := range r.projects {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
