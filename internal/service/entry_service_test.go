package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/timetrack/internal/cache"
	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/realtime"
	"github.com/yourorg/timetrack/internal/repository"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/security/audit"
)

// recordingBroadcaster captures broadcasts in order so tests can assert on
// fan-out without a websocket server.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, _ any, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) BroadcastToUser(event string, _ any, _, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// recordingStore wraps the memory store to observe invalidations relative
// to broadcasts.
type recordingStore struct {
	cache.Store
	mu      sync.Mutex
	deletes [][]string
}

func (s *recordingStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, keys)
	s.mu.Unlock()
	return s.Store.Delete(ctx, keys...)
}

type entryFixture struct {
	svc   *EntryService
	repo  *repository.MemoryEntryRepository
	clk   *clock.Mock
	cast  *recordingBroadcaster
	store *recordingStore
}

func newEntryFixture(t *testing.T) *entryFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryEntryRepository()
	projects := repository.NewMemoryProjectRepository()
	store := &recordingStore{Store: cache.NewMemoryStore()}
	cast := &recordingBroadcaster{}
	svc := NewEntryService(
		repo,
		projects,
		cache.New(store, 5*time.Minute, logger),
		cast,
		clk,
		audit.NewLogger(logger),
		security.DefaultElevated,
		5*time.Minute,
		logger,
	)
	return &entryFixture{svc: svc, repo: repo, clk: clk, cast: cast, store: store}
}

func member(userID string) security.Identity {
	return security.Identity{UserID: userID, TenantID: "tenant-1", Role: domain.RoleMember}
}

func TestPauseResumeAccruesOnlyRunningTime(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	entry, err := f.svc.Start(ctx, id, StartOptions{Description: "deep work"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, entry.Status)

	f.clk.Advance(90 * time.Second)
	entry, err = f.svc.Pause(ctx, id, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, entry.Status)
	assert.Equal(t, int64(90), entry.DurationSeconds)

	// A long pause must not accrue anything.
	f.clk.Advance(10 * time.Minute)
	entry, err = f.svc.Resume(ctx, id, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), entry.DurationSeconds)

	f.clk.Advance(50 * time.Second)
	entry, err = f.svc.Stop(ctx, id, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, entry.Status)
	assert.Equal(t, int64(140), entry.DurationSeconds)
	require.NotNil(t, entry.EndedAt)
	assert.True(t, entry.EndedAt.Equal(f.clk.Now().UTC()))
}

func TestStartWhileActiveReturnsConflictWithEntryID(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	first, err := f.svc.Start(ctx, id, StartOptions{})
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, id, StartOptions{})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ActiveEntryID)

	// A paused entry still occupies the slot.
	_, err = f.svc.Pause(ctx, id, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, id, StartOptions{})
	require.ErrorAs(t, err, &conflict)

	// Stopping frees it.
	_, err = f.svc.Stop(ctx, id, first.ID)
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, id, StartOptions{})
	assert.NoError(t, err)
}

func TestConcurrentStartsAdmitExactlyOne(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	const attempts = 32
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(ctx, id, StartOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict)
		conflicts++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
}

func TestStopTwiceFailsLoudly(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	entry, err := f.svc.Start(ctx, id, StartOptions{})
	require.NoError(t, err)
	f.clk.Advance(time.Minute)
	stopped, err := f.svc.Stop(ctx, id, entry.ID)
	require.NoError(t, err)

	_, err = f.svc.Stop(ctx, id, entry.ID)
	var trans *domain.TransitionError
	require.ErrorAs(t, err, &trans)
	assert.Equal(t, domain.StatusStopped, trans.From)

	// The failed stop must not move the recorded duration or end time.
	after, err := f.svc.Get(ctx, id, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, stopped.DurationSeconds, after.DurationSeconds)
	assert.True(t, after.EndedAt.Equal(*stopped.EndedAt))
}

func TestTransitionsOnOtherUsersEntryAreForbidden(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	owner := member("user-1")
	intruder := member("user-2")

	entry, err := f.svc.Start(ctx, owner, StartOptions{})
	require.NoError(t, err)

	_, err = f.svc.Pause(ctx, intruder, entry.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Elevated roles may act on any entry in the tenant.
	admin := security.Identity{UserID: "user-9", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}
	_, err = f.svc.Pause(ctx, admin, entry.ID)
	assert.NoError(t, err)
}

func TestWritesInvalidateCacheAndBroadcast(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	_, err := f.svc.Start(ctx, id, StartOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, f.store.deletes, "start must invalidate tenant aggregates")
	assert.Contains(t, f.store.deletes[0], cache.StatsKey("tenant-1"))

	events := f.cast.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventEntryUpdate, events[0])
	assert.Equal(t, realtime.EventActivityNew, events[1])
}

func TestStartRejectsSkewedClientTime(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	farPast := f.clk.Now().Add(-time.Hour)
	_, err := f.svc.Start(ctx, id, StartOptions{StartedAt: &farPast})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "startedAt", verr.Field)

	nearPast := f.clk.Now().Add(-time.Minute)
	entry, err := f.svc.Start(ctx, id, StartOptions{StartedAt: &nearPast})
	require.NoError(t, err)
	assert.True(t, entry.StartedAt.Equal(nearPast.UTC()))
}

func TestStartValidatesProjectAndDescription(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	unknown := "no-such-project"
	_, err := f.svc.Start(ctx, id, StartOptions{ProjectID: &unknown})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "projectId", verr.Field)

	long := make([]byte, domain.MaxDescriptionLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = f.svc.Start(ctx, id, StartOptions{Description: string(long)})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "description", verr.Field)
}

func TestCorrectOnlyAppliesToStoppedEntries(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	entry, err := f.svc.Start(ctx, id, StartOptions{})
	require.NoError(t, err)

	ninety := int64(90)
	_, err = f.svc.Correct(ctx, id, entry.ID, Correction{DurationSeconds: &ninety})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	f.clk.Advance(30 * time.Second)
	_, err = f.svc.Stop(ctx, id, entry.ID)
	require.NoError(t, err)

	corrected, err := f.svc.Correct(ctx, id, entry.ID, Correction{DurationSeconds: &ninety})
	require.NoError(t, err)
	assert.Equal(t, int64(90), corrected.DurationSeconds)

	negative := int64(-1)
	_, err = f.svc.Correct(ctx, id, entry.ID, Correction{DurationSeconds: &negative})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "durationSeconds", verr.Field)
}

func TestListPinsMembersToTheirOwnEntries(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, member("user-1"), StartOptions{})
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, member("user-2"), StartOptions{})
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, member("user-1"), domain.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "user-1", mine[0].UserID)

	_, err = f.svc.List(ctx, member("user-1"), domain.EntryFilter{UserID: "user-2"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	admin := security.Identity{UserID: "user-9", TenantID: "tenant-1", Role: domain.RoleTenantAdmin}
	all, err := f.svc.List(ctx, admin, domain.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestForceStopEndsStaleEntry(t *testing.T) {
	f := newEntryFixture(t)
	ctx := context.Background()
	id := member("user-1")

	entry, err := f.svc.Start(ctx, id, StartOptions{})
	require.NoError(t, err)
	f.clk.Advance(25 * time.Hour)

	stopped, err := f.svc.ForceStop(ctx, "tenant-1", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stopped.Status)
	assert.Equal(t, int64(25*3600), stopped.DurationSeconds)

	// The slot is free again.
	_, err = f.svc.GetActive(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
