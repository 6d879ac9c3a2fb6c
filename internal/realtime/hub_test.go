package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/timetrack/internal/clock"
)

func testHub(t *testing.T) (*Hub, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return NewHub(clk, nil), clk
}

func addSession(h *Hub, tenantID, userID string) *Session {
	s := newSession(h, nil, tenantID, userID, h.logger)
	h.register(s)
	return s
}

func receive(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case data := <-s.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	default:
		t.Fatal("expected a pending message")
		return Envelope{}
	}
}

func TestBroadcastReachesOnlyTenantSessions(t *testing.T) {
	h, clk := testHub(t)
	a1 := addSession(h, "tenant-a", "user-1")
	a2 := addSession(h, "tenant-a", "user-2")
	b1 := addSession(h, "tenant-b", "user-3")

	h.Broadcast(EventEntryUpdate, map[string]string{"id": "e1"}, "tenant-a")

	env := receive(t, a1)
	assert.Equal(t, EventEntryUpdate, env.Event)
	assert.True(t, env.Timestamp.Equal(clk.Now().UTC()), "timestamp must be server-generated")
	receive(t, a2)

	select {
	case <-b1.send:
		t.Fatal("tenant-b session must not receive tenant-a events")
	default:
	}
}

func TestBroadcastToUserIsPrivate(t *testing.T) {
	h, _ := testHub(t)
	mine := addSession(h, "tenant-a", "user-1")
	other := addSession(h, "tenant-a", "user-2")

	h.BroadcastToUser(EventEntryUpdate, map[string]string{"id": "e1"}, "tenant-a", "user-1")

	receive(t, mine)
	select {
	case <-other.send:
		t.Fatal("private events must not reach other users")
	default:
	}
}

func TestSlowSessionIsDropped(t *testing.T) {
	h, _ := testHub(t)
	s := addSession(h, "tenant-a", "user-1")

	// Never drain: once the buffer is full the hub must drop the session
	// instead of blocking the broadcast.
	for i := 0; i < sendBufferSize+1; i++ {
		h.Broadcast(EventStatsUpdate, nil, "tenant-a")
	}

	assert.Equal(t, 0, h.SessionCount("tenant-a"))
	_, open := <-s.send
	for open {
		_, open = <-s.send
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h, _ := testHub(t)
	s := addSession(h, "tenant-a", "user-1")

	h.unregister(s)
	h.unregister(s) // second call must not panic or double-close

	assert.Equal(t, 0, h.SessionCount("tenant-a"))
	assert.Empty(t, h.Tenants())
}
