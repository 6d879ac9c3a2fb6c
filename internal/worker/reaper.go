// Package worker holds the background loops that run alongside the HTTP
// server. The reaper is the safety net for runaway timers: an entry left
// active past the configured maximum is force-stopped so it cannot accrue
// unbounded duration.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/featureflags"
	"github.com/yourorg/timetrack/internal/observability/metrics"
	"github.com/yourorg/timetrack/internal/realtime"
	"github.com/yourorg/timetrack/internal/reliability/retry"
	"github.com/yourorg/timetrack/internal/service"
)

// EntryScanner is the slice of the entry store the reaper needs: stale
// listing and the active gauge, across all tenants.
type EntryScanner interface {
	ListStaleActive(ctx context.Context, cutoff time.Time) ([]*domain.TimeEntry, error)
	CountActive(ctx context.Context) (int, error)
}

// Reaper periodically force-stops entries that exceeded the maximum entry
// duration and refreshes the active-timers gauge. With the stats_push flag
// enabled it also recomputes and pushes dashboard stats to tenants that
// have connected sessions.
type Reaper struct {
	scanner     EntryScanner
	entries     *service.EntryService
	stats       *service.StatsService
	hub         *realtime.Hub
	logger      *slog.Logger
	interval    time.Duration
	maxDuration time.Duration
	retryCfg    *retry.Config
}

// NewReaper creates a new reaper.
func NewReaper(
	scanner EntryScanner,
	entries *service.EntryService,
	stats *service.StatsService,
	hub *realtime.Hub,
	interval time.Duration,
	maxDuration time.Duration,
	logger *slog.Logger,
) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		scanner:     scanner,
		entries:     entries,
		stats:       stats,
		hub:         hub,
		logger:      logger,
		interval:    interval,
		maxDuration: maxDuration,
		retryCfg:    retry.DefaultConfig(),
	}
}

// Start begins the reaper loop. It blocks until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("max_entry_duration", r.maxDuration),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep runs one reaper pass.
func (r *Reaper) sweep(ctx context.Context) {
	if count, err := r.scanner.CountActive(ctx); err == nil {
		metrics.SetActiveTimers(count)
	} else {
		r.logger.Error("failed to count active entries", slog.String("error", err.Error()))
	}

	cutoff := time.Now().UTC().Add(-r.maxDuration)
	stale, err := r.scanner.ListStaleActive(ctx, cutoff)
	if err != nil {
		r.logger.Error("failed to list stale entries", slog.String("error", err.Error()))
		return
	}

	touched := map[string]struct{}{}
	for _, e := range stale {
		if r.forceStop(ctx, e) {
			touched[e.TenantID] = struct{}{}
		}
	}

	if featureflags.Enabled("stats_push") {
		r.pushStats(ctx, touched)
	}
}

// forceStop ends one stale entry, retrying transient store failures.
// Reports whether the entry was stopped by this pass.
func (r *Reaper) forceStop(ctx context.Context, e *domain.TimeEntry) bool {
	logger := r.logger.With(
		slog.String("entry_id", e.ID),
		slog.String("tenant_id", e.TenantID),
		slog.String("user_id", e.UserID),
	)
	logger.Warn("force-stopping stale entry", slog.Time("started_at", e.StartedAt))

	_, err := r.entries.ForceStop(ctx, e.TenantID, e.ID)
	if err != nil && domain.IsRetryable(err) {
		_, err = retry.Do(ctx, r.retryCfg, logger, "reaper force-stop",
			func(ctx context.Context) (*domain.TimeEntry, error) {
				return r.entries.ForceStop(ctx, e.TenantID, e.ID)
			})
	}
	if err != nil {
		var trans *domain.TransitionError
		if errors.As(err, &trans) {
			// Someone stopped it between the scan and now; nothing to do.
			metrics.ObserveReaperStop("already_stopped")
			return false
		}
		logger.Error("reaper failed to stop entry", slog.String("error", err.Error()))
		metrics.ObserveReaperStop("error")
		return false
	}

	metrics.ObserveReaperStop("stopped")
	return true
}

// pushStats recomputes and broadcasts dashboard stats for tenants with
// connected sessions, plus any tenants the sweep just mutated.
func (r *Reaper) pushStats(ctx context.Context, touched map[string]struct{}) {
	for _, tenantID := range r.hub.Tenants() {
		touched[tenantID] = struct{}{}
	}
	for tenantID := range touched {
		stats, err := r.stats.Recompute(ctx, tenantID)
		if err != nil {
			r.logger.Error("stats push recompute failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.hub.Broadcast(realtime.EventStatsUpdate, stats, tenantID)
	}
}
