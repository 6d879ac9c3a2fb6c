// Package realtime fans lifecycle deltas out to connected sessions so every
// client's view of who is tracking what stays consistent without polling.
// Delivery is best-effort and unordered-but-timestamped: a client that
// misses an event reconciles on its next full read.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/timetrack/internal/clock"
	"github.com/yourorg/timetrack/internal/observability/metrics"
)

// Event names emitted over the realtime channel.
const (
	EventEntryUpdate = "time-entry:update"
	EventActivityNew = "activity:new"
	EventStatsUpdate = "stats:update"
)

// Envelope wraps every broadcast payload. Timestamp is server-generated so
// client clock skew cannot reorder events across viewers.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Hub is the explicit registry of live sessions: insert on connect, remove
// on disconnect, iterate under lock on broadcast. It is passed by reference
// to whoever needs to publish, never held as hidden package state.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*Session]struct{}
	clock   clock.Clock
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(clk clock.Clock, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		tenants: map[string]map[*Session]struct{}{},
		clock:   clk,
		logger:  logger,
	}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions, ok := h.tenants[s.tenantID]
	if !ok {
		sessions = map[*Session]struct{}{}
		h.tenants[s.tenantID] = sessions
	}
	sessions[s] = struct{}{}
	metrics.SessionConnected()
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions, ok := h.tenants[s.tenantID]
	if !ok {
		return
	}
	if _, present := sessions[s]; !present {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(h.tenants, s.tenantID)
	}
	close(s.send)
	metrics.SessionDisconnected()
}

// Broadcast sends the event to every session subscribed to the tenant.
// Sessions whose send buffer is full are dropped rather than blocked on:
// they will reconcile after reconnecting.
func (h *Hub) Broadcast(event string, payload any, tenantID string) {
	h.send(event, payload, tenantID, "")
}

// BroadcastToUser sends the event only to the user's private sessions.
func (h *Hub) BroadcastToUser(event string, payload any, tenantID, userID string) {
	h.send(event, payload, tenantID, userID)
}

func (h *Hub) send(event string, payload any, tenantID, userID string) {
	data, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: h.clock.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("broadcast marshal failed", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	var stale []*Session
	h.mu.RLock()
	for s := range h.tenants[tenantID] {
		if userID != "" && s.userID != userID {
			continue
		}
		select {
		case s.send <- data:
		default:
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.logger.Warn("dropping slow realtime session",
			slog.String("tenant_id", s.tenantID),
			slog.String("user_id", s.userID),
		)
		h.unregister(s)
	}
	metrics.ObserveBroadcast(event)
}

// Tenants returns the tenant ids that currently have connected sessions.
// The reaper uses it to push stats only where someone is watching.
func (h *Hub) Tenants() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.tenants))
	for id := range h.tenants {
		out = append(out, id)
	}
	return out
}

// SessionCount returns the number of sessions subscribed to the tenant.
func (h *Hub) SessionCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}
