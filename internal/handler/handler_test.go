package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
	"github.com/yourorg/timetrack/internal/security/auth"
	"github.com/yourorg/timetrack/internal/security/middleware"
	"github.com/yourorg/timetrack/internal/service"
)

const testSecret = "test-secret"

type apiFixture struct {
	server *httptest.Server
	tokens *auth.TokenManager
	clk    *clock.Mock
}

// newAPIFixture wires the full HTTP surface over in-memory stores, with the
// real JWT middleware in front, the way cmd/server does.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	entryRepo := repository.NewMemoryEntryRepository()
	projectRepo := repository.NewMemoryProjectRepository()
	tenantCache := cache.New(cache.NewMemoryStore(), 5*time.Minute, logger)
	hub := realtime.NewHub(clk, logger)
	auditLog := audit.NewLogger(logger)
	tokens := auth.NewTokenManager(testSecret, "timetrack")

	entries := service.NewEntryService(
		entryRepo, projectRepo, tenantCache, hub, clk, auditLog,
		security.DefaultElevated, 5*time.Minute, logger,
	)
	stats := service.NewStatsService(entryRepo, tenantCache, clk, security.DefaultElevated, logger)

	mux := http.NewServeMux()
	NewTimeEntryHandler(entries, logger).Register(mux)
	NewStatsHandler(stats, time.Second, logger).Register(mux)
	NewProjectsHandler(projectRepo, tenantCache, security.DefaultElevated, logger).Register(mux)

	handler := middleware.JWTMiddleware(tokens, logger)(mux)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, tokens: tokens, clk: clk}
}

func (f *apiFixture) token(t *testing.T, userID string, role domain.Role) string {
	t.Helper()
	token, err := f.tokens.GenerateToken("tenant-1", userID, userID+"@example.com", role, time.Hour)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestEntryLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", domain.RoleMember)

	resp := f.do(t, http.MethodPost, "/api/time-entries", token, StartEntryRequest{Description: "writing"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decode[EntryResponse](t, resp)
	assert.Equal(t, "running", started.Status)

	f.clk.Advance(90 * time.Second)

	resp = f.do(t, http.MethodGet, "/api/time-entries/active", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active := decode[EntryResponse](t, resp)
	assert.Equal(t, started.ID, active.ID)
	assert.Equal(t, int64(90), active.LiveSeconds)
	assert.Equal(t, int64(0), active.DurationSeconds, "running interval is not persisted until a transition")

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/pause", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paused := decode[EntryResponse](t, resp)
	assert.Equal(t, int64(90), paused.DurationSeconds)

	f.clk.Advance(50 * time.Second)
	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/stop", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stopped := decode[EntryResponse](t, resp)
	assert.Equal(t, "stopped", stopped.Status)
	assert.Equal(t, int64(90), stopped.DurationSeconds, "paused time never accrues")
	require.NotNil(t, stopped.EndedAt)

	resp = f.do(t, http.MethodGet, "/api/time-entries/active", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestStartConflictReturns409WithActiveEntryID(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", domain.RoleMember)

	resp := f.do(t, http.MethodPost, "/api/time-entries", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[EntryResponse](t, resp)

	resp = f.do(t, http.MethodPost, "/api/time-entries", token, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, first.ID, body.ActiveEntryID)
}

func TestIllegalTransitionReturns409(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", domain.RoleMember)

	resp := f.do(t, http.MethodPost, "/api/time-entries", token, nil)
	started := decode[EntryResponse](t, resp)

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/stop", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/stop", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/resume", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCrossUserTransitionReturns403(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.token(t, "user-1", domain.RoleMember)
	intruder := f.token(t, "user-2", domain.RoleMember)

	resp := f.do(t, http.MethodPost, "/api/time-entries", owner, nil)
	started := decode[EntryResponse](t, resp)

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/pause", intruder, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/api/time-entries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestStatsEndpointAggregatesTenant(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.token(t, "admin-1", domain.RoleTenantAdmin)

	for _, u := range []string{"user-1", "user-2", "user-3"} {
		resp := f.do(t, http.MethodPost, "/api/time-entries", f.token(t, u, domain.RoleMember), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}
	f.clk.Advance(60 * time.Second)

	resp := f.do(t, http.MethodGet, "/api/stats", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[domain.DashboardStats](t, resp)
	assert.Equal(t, int64(180), stats.TotalSeconds)
	assert.Equal(t, 3, stats.RunningUsers)
}

func TestProjectCreationRequiresElevatedRole(t *testing.T) {
	f := newAPIFixture(t)
	member := f.token(t, "user-1", domain.RoleMember)
	admin := f.token(t, "admin-1", domain.RoleTenantAdmin)

	resp := f.do(t, http.MethodPost, "/api/projects", member, CreateProjectRequest{Name: "backend"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/projects", admin, CreateProjectRequest{Name: "backend"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[ProjectResponse](t, resp)
	assert.Equal(t, "backend", created.Name)

	resp = f.do(t, http.MethodGet, "/api/projects", member, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[map[string][]ProjectResponse](t, resp)
	require.Len(t, list["projects"], 1)
	assert.Equal(t, created.ID, list["projects"][0].ID)
}

func TestCorrectionEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", domain.RoleMember)

	resp := f.do(t, http.MethodPost, "/api/time-entries", token, nil)
	started := decode[EntryResponse](t, resp)
	f.clk.Advance(30 * time.Second)

	// Correcting a running entry is a 400.
	ninety := int64(90)
	resp = f.do(t, http.MethodPatch, "/api/time-entries/"+started.ID, token, CorrectEntryRequest{DurationSeconds: &ninety})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPut, "/api/time-entries/"+started.ID+"/stop", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = f.do(t, http.MethodPatch, "/api/time-entries/"+started.ID, token, CorrectEntryRequest{DurationSeconds: &ninety})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	corrected := decode[EntryResponse](t, resp)
	assert.Equal(t, int64(90), corrected.DurationSeconds)
}
