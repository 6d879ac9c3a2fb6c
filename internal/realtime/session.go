package realtime

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 32
	pingInterval   = 15 * time.Second
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
)

// Session is one live websocket connection, joined at connect time to its
// tenant room and implicitly to the user's private room.
type Session struct {
	hub      *Hub
	conn     *websocket.Conn
	tenantID string
	userID   string
	send     chan []byte
	logger   *slog.Logger
}

func newSession(hub *Hub, conn *websocket.Conn, tenantID, userID string, logger *slog.Logger) *Session {
	return &Session{
		hub:      hub,
		conn:     conn,
		tenantID: tenantID,
		userID:   userID,
		send:     make(chan []byte, sendBufferSize),
		logger:   logger,
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings, mirroring 1:1 with the single allowed writer goroutine.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				// Hub dropped us.
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.hub.unregister(s)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				s.hub.unregister(s)
				return
			}
		}
	}
}

// readPump discards inbound frames; the channel is server-to-client only.
// It exists to notice closes and keep pong deadlines fresh.
func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket closed unexpectedly",
					slog.String("tenant_id", s.tenantID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
