package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/repository"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/security/audit"
)

type statsFixture struct {
	entries *EntryService
	stats   *StatsService
	clk     *clock.Mock
	store   *recordingStore
}

func newStatsFixture(t *testing.T) *statsFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryEntryRepository()
	store := &recordingStore{Store: cache.NewMemoryStore()}
	tenantCache := cache.New(store, 5*time.Minute, logger)
	entries := NewEntryService(
		repo,
		repository.NewMemoryProjectRepository(),
		tenantCache,
		&recordingBroadcaster{},
		clk,
		audit.NewLogger(logger),
		security.DefaultElevated,
		5*time.Minute,
		logger,
	)
	stats := NewStatsService(repo, tenantCache, clk, security.DefaultElevated, logger)
	return &statsFixture{entries: entries, stats: stats, clk: clk, store: store}
}

func TestDashboardBlendsLiveRunningTime(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()

	for _, u := range []string{"user-1", "user-2", "user-3"} {
		_, err := f.entries.Start(ctx, member(u), StartOptions{})
		require.NoError(t, err)
	}

	f.clk.Advance(60 * time.Second)

	admin := security.Identity{UserID: "user-9", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}
	stats, err := f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)

	assert.Equal(t, int64(180), stats.TotalSeconds, "three running users accrue 60s each")
	assert.Equal(t, 3, stats.RunningUsers)
	assert.Equal(t, int64(180), stats.TodaySeconds)
}

func TestDashboardScopesMembersToOwnEntries(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()

	_, err := f.entries.Start(ctx, member("user-1"), StartOptions{})
	require.NoError(t, err)
	_, err = f.entries.Start(ctx, member("user-2"), StartOptions{})
	require.NoError(t, err)

	f.clk.Advance(30 * time.Second)

	mine, err := f.stats.Dashboard(ctx, member("user-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), mine.TotalSeconds)
	assert.Equal(t, 1, mine.RunningUsers)
}

func TestDashboardCachesTenantWideViewUntilInvalidated(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()
	admin := security.Identity{UserID: "user-9", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}

	entry, err := f.entries.Start(ctx, member("user-1"), StartOptions{})
	require.NoError(t, err)
	f.clk.Advance(10 * time.Second)

	first, err := f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.TotalSeconds)

	// The cached aggregate is served as-is while nothing is written.
	f.clk.Advance(20 * time.Second)
	cached, err := f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cached.TotalSeconds)

	// A write invalidates; the next read recomputes with the new clock.
	_, err = f.entries.Stop(ctx, member("user-1"), entry.ID)
	require.NoError(t, err)
	fresh, err := f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(30), fresh.TotalSeconds)
	assert.Equal(t, 0, fresh.RunningUsers)
}

func TestRecomputeRefreshesCache(t *testing.T) {
	f := newStatsFixture(t)
	ctx := context.Background()
	admin := security.Identity{UserID: "user-9", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}

	_, err := f.entries.Start(ctx, member("user-1"), StartOptions{})
	require.NoError(t, err)

	// Warm a stale value, then advance and recompute.
	_, err = f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)
	f.clk.Advance(45 * time.Second)

	fresh, err := f.stats.Recompute(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(45), fresh.TotalSeconds)

	cached, err := f.stats.Dashboard(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, fresh.TotalSeconds, cached.TotalSeconds)
}
