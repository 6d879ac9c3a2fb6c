package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/timer"
)

// StatsService derives dashboard aggregates from the entry store at read
// time. Tenant-wide aggregates go through the read-through cache; every
// entry write invalidates them, so staleness is bounded by the TTL only
// for the live portion of running timers.
type StatsService struct {
	entries  domain.EntryRepository
	cache    *cache.TenantCache
	clock    clock.Clock
	elevated security.Capability
	logger   *slog.Logger
}

// NewStatsService creates a new stats service.
func NewStatsService(
	entries domain.EntryRepository,
	tenantCache *cache.TenantCache,
	clk clock.Clock,
	elevated security.Capability,
	logger *slog.Logger,
) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	if elevated == nil {
		elevated = security.DefaultElevated
	}
	return &StatsService{
		entries:  entries,
		cache:    tenantCache,
		clock:    clk,
		elevated: elevated,
		logger:   logger,
	}
}

// Dashboard returns stats scoped by the caller's capability: elevated roles
// see the whole tenant, members see only their own entries. Only the
// tenant-wide view is cached; per-user views differ by caller and are cheap
// to compute directly.
func (s *StatsService) Dashboard(ctx context.Context, id security.Identity) (*domain.DashboardStats, error) {
	if !s.elevated(id.Role) {
		return s.compute(ctx, id.TenantID, id.UserID)
	}

	var stats domain.DashboardStats
	if s.cache.GetJSON(ctx, cache.StatsKey(id.TenantID), &stats) {
		return &stats, nil
	}

	fresh, err := s.compute(ctx, id.TenantID, "")
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, cache.StatsKey(id.TenantID), fresh)
	return fresh, nil
}

// Recompute rebuilds and recaches the tenant-wide stats, returning the fresh
// value. The reaper calls it to push stats:update to watching sessions.
func (s *StatsService) Recompute(ctx context.Context, tenantID string) (*domain.DashboardStats, error) {
	fresh, err := s.compute(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, cache.StatsKey(tenantID), fresh)
	return fresh, nil
}

func (s *StatsService) compute(ctx context.Context, tenantID, userID string) (*domain.DashboardStats, error) {
	entries, err := s.entries.List(ctx, tenantID, domain.EntryFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	midnight := now.Truncate(24 * time.Hour) // start of the UTC day

	stats := &domain.DashboardStats{}
	runningUsers := map[string]struct{}{}
	activeProjects := map[string]struct{}{}

	for _, e := range entries {
		live := timer.LiveSeconds(e, now)
		stats.TotalSeconds += live

		if e.Status == domain.StatusRunning {
			runningUsers[e.UserID] = struct{}{}
		}
		if e.Active() && e.ProjectID != nil {
			activeProjects[*e.ProjectID] = struct{}{}
		}
		if !e.StartedAt.Before(midnight) {
			stats.TodaySeconds += live
		}
	}

	stats.RunningUsers = len(runningUsers)
	stats.ActiveProjects = len(activeProjects)
	return stats, nil
}
