// Package service orchestrates the time-entry lifecycle: authorization,
// validation, the guarded store write, cache invalidation and the realtime
// broadcast, in that order. All timer arithmetic lives in internal/timer;
// all atomicity lives in the repositories. A service method reads the clock
// exactly once and threads that instant through the whole operation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/observability/metrics"
	"github.com/yourorg/timetrack/internal/realtime"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/security/audit"
	"github.com/yourorg/timetrack/internal/timer"
)

// Broadcaster publishes tenant-scoped events. *realtime.Hub satisfies it;
// tests substitute a recorder.
type Broadcaster interface {
	Broadcast(event string, payload any, tenantID string)
	BroadcastToUser(event string, payload any, tenantID, userID string)
}

// EntryService coordinates time-entry operations.
type EntryService struct {
	entries     domain.EntryRepository
	projects    domain.ProjectRepository
	cache       *cache.TenantCache
	broadcaster Broadcaster
	clock       clock.Clock
	audit       *audit.Logger
	elevated    security.Capability
	logger      *slog.Logger

	startSkewTolerance time.Duration
}

// NewEntryService creates a new entry service. skewTolerance bounds how far
// a client-supplied start time may deviate from the server clock.
func NewEntryService(
	entries domain.EntryRepository,
	projects domain.ProjectRepository,
	tenantCache *cache.TenantCache,
	broadcaster Broadcaster,
	clk clock.Clock,
	auditLog *audit.Logger,
	elevated security.Capability,
	skewTolerance time.Duration,
	logger *slog.Logger,
) *EntryService {
	if logger == nil {
		logger = slog.Default()
	}
	if elevated == nil {
		elevated = security.DefaultElevated
	}
	return &EntryService{
		entries:            entries,
		projects:           projects,
		cache:              tenantCache,
		broadcaster:        broadcaster,
		clock:              clk,
		audit:              auditLog,
		elevated:           elevated,
		logger:             logger,
		startSkewTolerance: skewTolerance,
	}
}

// StartOptions captures a start request. StartedAt is optional; when set it
// must fall within the configured skew tolerance of server time.
type StartOptions struct {
	ProjectID   *string
	Description string
	StartedAt   *time.Time
}

// Start creates a new running entry for the caller. The per-user
// single-active-entry rule is enforced by the repository; on conflict the
// returned ConflictError carries the id of the entry already occupying the
// slot.
func (s *EntryService) Start(ctx context.Context, id security.Identity, opts StartOptions) (*domain.TimeEntry, error) {
	now := s.clock.Now().UTC()

	startedAt := now
	if opts.StartedAt != nil {
		requested := opts.StartedAt.UTC()
		skew := now.Sub(requested)
		if skew < 0 {
			skew = -skew
		}
		if skew > s.startSkewTolerance {
			return nil, &domain.ValidationError{Field: "startedAt", Reason: "too far from server time"}
		}
		startedAt = requested
	}

	description := strings.TrimSpace(opts.Description)
	if len(description) > domain.MaxDescriptionLen {
		return nil, &domain.ValidationError{Field: "description", Reason: "too long"}
	}

	if opts.ProjectID != nil {
		if _, err := s.projects.GetByID(ctx, id.TenantID, *opts.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, &domain.ValidationError{Field: "projectId", Reason: "unknown project"}
			}
			return nil, err
		}
	}

	entry := &domain.TimeEntry{
		ID:            uuid.NewString(),
		TenantID:      id.TenantID,
		UserID:        id.UserID,
		ProjectID:     opts.ProjectID,
		Description:   description,
		Status:        domain.StatusRunning,
		StartedAt:     startedAt,
		LastResumedAt: startedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	act := s.newActivity(entry, domain.OpStart, now)

	if err := s.entries.TryStart(ctx, entry, act); err != nil {
		metrics.ObserveTransition(string(domain.OpStart), "rejected")
		s.audit.LogTransition(ctx, id.TenantID, id.UserID, entry.ID, string(domain.OpStart), "rejected")
		return nil, err
	}

	metrics.ObserveTransition(string(domain.OpStart), "applied")
	metrics.IncrementActiveTimers()
	s.audit.LogTransition(ctx, id.TenantID, id.UserID, entry.ID, string(domain.OpStart), "applied")
	s.finishWrite(ctx, entry, act)
	return entry, nil
}

// Pause freezes accrual on a running entry.
func (s *EntryService) Pause(ctx context.Context, id security.Identity, entryID string) (*domain.TimeEntry, error) {
	return s.transition(ctx, id, entryID, domain.OpPause)
}

// Resume restarts accrual on a paused entry.
func (s *EntryService) Resume(ctx context.Context, id security.Identity, entryID string) (*domain.TimeEntry, error) {
	return s.transition(ctx, id, entryID, domain.OpResume)
}

// Stop ends an entry and releases the caller's active slot. Stopped is
// terminal; a second stop fails with a TransitionError.
func (s *EntryService) Stop(ctx context.Context, id security.Identity, entryID string) (*domain.TimeEntry, error) {
	entry, err := s.transition(ctx, id, entryID, domain.OpStop)
	if err != nil {
		return nil, err
	}
	metrics.DecrementActiveTimers()
	return entry, nil
}

func (s *EntryService) transition(ctx context.Context, id security.Identity, entryID string, op domain.Operation) (*domain.TimeEntry, error) {
	now := s.clock.Now().UTC()

	var act *domain.Activity
	entry, err := s.entries.Transition(ctx, id.TenantID, entryID, func(e *domain.TimeEntry) (*domain.Activity, error) {
		if !id.CanActOn(e.UserID, s.elevated) {
			return nil, domain.ErrForbidden
		}
		next, err := timer.Apply(e.Status, op)
		if err != nil {
			return nil, err
		}
		if e.Status == domain.StatusRunning {
			total, err := timer.Accrue(e.DurationSeconds, e.LastResumedAt, now)
			if err != nil {
				return nil, err
			}
			e.DurationSeconds = total
		}
		if op == domain.OpResume {
			e.LastResumedAt = now
		}
		if next == domain.StatusStopped {
			ended := now
			e.EndedAt = &ended
		}
		e.Status = next
		e.UpdatedAt = now
		act = s.newActivity(e, op, now)
		return act, nil
	})
	if err != nil {
		metrics.ObserveTransition(string(op), "rejected")
		s.audit.LogTransition(ctx, id.TenantID, id.UserID, entryID, string(op), "rejected")
		return nil, err
	}

	metrics.ObserveTransition(string(op), "applied")
	s.audit.LogTransition(ctx, id.TenantID, id.UserID, entryID, string(op), "applied")
	s.finishWrite(ctx, entry, act)
	return entry, nil
}

// ForceStop stops an entry without an owner check. It exists for the reaper,
// which acts on entries that outlived the configured maximum duration.
func (s *EntryService) ForceStop(ctx context.Context, tenantID, entryID string) (*domain.TimeEntry, error) {
	now := s.clock.Now().UTC()

	var act *domain.Activity
	entry, err := s.entries.Transition(ctx, tenantID, entryID, func(e *domain.TimeEntry) (*domain.Activity, error) {
		next, err := timer.Apply(e.Status, domain.OpStop)
		if err != nil {
			return nil, err
		}
		if e.Status == domain.StatusRunning {
			total, err := timer.Accrue(e.DurationSeconds, e.LastResumedAt, now)
			if err != nil {
				return nil, err
			}
			e.DurationSeconds = total
		}
		ended := now
		e.EndedAt = &ended
		e.Status = next
		e.UpdatedAt = now
		act = s.newActivity(e, domain.OpStop, now)
		return act, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition(string(domain.OpStop), "forced")
	metrics.DecrementActiveTimers()
	s.audit.LogTransition(ctx, tenantID, "system", entryID, string(domain.OpStop), "forced")
	s.finishWrite(ctx, entry, act)
	return entry, nil
}

// Correction rewrites fields on a stopped entry. Nil fields are left alone.
type Correction struct {
	DurationSeconds *int64
	Description     *string
	ProjectID       *string
}

// Correct applies an administrative edit to a stopped entry. Active entries
// cannot be corrected: their duration is still moving.
func (s *EntryService) Correct(ctx context.Context, id security.Identity, entryID string, c Correction) (*domain.TimeEntry, error) {
	now := s.clock.Now().UTC()

	entry, err := s.entries.GetByID(ctx, id.TenantID, entryID)
	if err != nil {
		return nil, err
	}
	if !id.CanActOn(entry.UserID, s.elevated) {
		s.audit.LogDenied(ctx, id.TenantID, id.UserID, "correction of another user's entry")
		return nil, domain.ErrForbidden
	}
	if entry.Status != domain.StatusStopped {
		return nil, &domain.ValidationError{Field: "status", Reason: "only stopped entries can be corrected"}
	}

	if c.DurationSeconds != nil {
		d := *c.DurationSeconds
		if d < 0 || d > timer.MaxDurationSeconds {
			return nil, &domain.ValidationError{Field: "durationSeconds", Reason: "out of range"}
		}
		entry.DurationSeconds = d
	}
	if c.Description != nil {
		desc := strings.TrimSpace(*c.Description)
		if len(desc) > domain.MaxDescriptionLen {
			return nil, &domain.ValidationError{Field: "description", Reason: "too long"}
		}
		entry.Description = desc
	}
	if c.ProjectID != nil {
		if *c.ProjectID == "" {
			entry.ProjectID = nil
		} else {
			if _, err := s.projects.GetByID(ctx, id.TenantID, *c.ProjectID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, &domain.ValidationError{Field: "projectId", Reason: "unknown project"}
				}
				return nil, err
			}
			entry.ProjectID = c.ProjectID
		}
	}
	entry.UpdatedAt = now

	if err := s.entries.Correct(ctx, id.TenantID, entry); err != nil {
		s.audit.LogCorrection(ctx, id.TenantID, id.UserID, entryID, "rejected")
		return nil, err
	}

	s.audit.LogCorrection(ctx, id.TenantID, id.UserID, entryID, "applied")
	s.cache.InvalidateTenant(ctx, entry.TenantID)
	s.broadcaster.Broadcast(realtime.EventEntryUpdate, entryPayload(entry, now), entry.TenantID)
	return entry, nil
}

// GetActive returns the caller's active entry, or ErrNotFound when the slot
// is free.
func (s *EntryService) GetActive(ctx context.Context, id security.Identity) (*domain.TimeEntry, error) {
	return s.entries.GetActive(ctx, id.TenantID, id.UserID)
}

// GetActiveFor returns userID's active entry. Members may only query their
// own slot; elevated roles may query anyone in the tenant.
func (s *EntryService) GetActiveFor(ctx context.Context, id security.Identity, userID string) (*domain.TimeEntry, error) {
	if userID == "" || userID == id.UserID {
		return s.GetActive(ctx, id)
	}
	if !s.elevated(id.Role) {
		return nil, domain.ErrForbidden
	}
	return s.entries.GetActive(ctx, id.TenantID, userID)
}

// Get returns one entry. Members may only read their own entries.
func (s *EntryService) Get(ctx context.Context, id security.Identity, entryID string) (*domain.TimeEntry, error) {
	entry, err := s.entries.GetByID(ctx, id.TenantID, entryID)
	if err != nil {
		return nil, err
	}
	if !id.CanActOn(entry.UserID, s.elevated) {
		return nil, domain.ErrForbidden
	}
	return entry, nil
}

// List returns entries visible to the caller. Non-elevated callers are
// pinned to their own entries regardless of the requested filter.
func (s *EntryService) List(ctx context.Context, id security.Identity, filter domain.EntryFilter) ([]*domain.TimeEntry, error) {
	if !s.elevated(id.Role) {
		if filter.UserID != "" && filter.UserID != id.UserID {
			return nil, domain.ErrForbidden
		}
		filter.UserID = id.UserID
	}
	return s.entries.List(ctx, id.TenantID, filter)
}

// LiveSeconds reports the display duration for an entry at this instant.
func (s *EntryService) LiveSeconds(e *domain.TimeEntry) int64 {
	return timer.LiveSeconds(e, s.clock.Now().UTC())
}

// finishWrite runs the post-commit tail of every successful write: drop the
// tenant's derived aggregates, then fan the delta out. Invalidation comes
// first so a client reacting to the broadcast can never read pre-write
// aggregates.
func (s *EntryService) finishWrite(ctx context.Context, entry *domain.TimeEntry, act *domain.Activity) {
	s.cache.InvalidateTenant(ctx, entry.TenantID)
	s.broadcaster.Broadcast(realtime.EventEntryUpdate, entryPayload(entry, s.clock.Now().UTC()), entry.TenantID)
	if act != nil {
		s.broadcaster.Broadcast(realtime.EventActivityNew, activityPayload(act), entry.TenantID)
	}
}

func (s *EntryService) newActivity(e *domain.TimeEntry, op domain.Operation, now time.Time) *domain.Activity {
	return &domain.Activity{
		ID:         uuid.NewString(),
		TenantID:   e.TenantID,
		UserID:     e.UserID,
		EntryID:    e.ID,
		Kind:       op,
		OccurredAt: now,
	}
}

func entryPayload(e *domain.TimeEntry, now time.Time) map[string]any {
	return map[string]any{
		"id":              e.ID,
		"userId":          e.UserID,
		"projectId":       e.ProjectID,
		"description":     e.Description,
		"status":          e.Status,
		"startedAt":       e.StartedAt,
		"endedAt":         e.EndedAt,
		"durationSeconds": e.DurationSeconds,
		"liveSeconds":     timer.LiveSeconds(e, now),
	}
}

func activityPayload(a *domain.Activity) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"userId":     a.UserID,
		"entryId":    a.EntryID,
		"kind":       a.Kind,
		"occurredAt": a.OccurredAt,
	}
}
