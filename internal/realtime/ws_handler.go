package realtime

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/yourorg/timetrack/internal/security/auth"
)

// WSHandler upgrades authenticated clients onto the hub. Admission requires
// a valid, unexpired token presented at handshake time; anything else is
// refused outright rather than left connected unauthenticated.
type WSHandler struct {
	hub            *Hub
	tokenManager   *auth.TokenManager
	logger         *slog.Logger
	allowedOrigins []string
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(hub *Hub, tm *auth.TokenManager, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:            hub,
		tokenManager:   tm,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *WSHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Allow requests with no origin (e.g., non-browser clients)
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws?token=... requests.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set Authorization headers on upgrade requests, so the
	// bearer credential arrives as a query parameter.
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); header != "" {
			if extracted, err := auth.ExtractToken(header); err == nil {
				token = extracted
			}
		}
	}
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenManager.ValidateToken(token)
	if err != nil {
		h.logger.Warn("websocket handshake rejected", slog.String("error", err.Error()))
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	session := newSession(h.hub, conn, claims.TenantID, claims.UserID, h.logger)
	h.hub.register(session)

	h.logger.Debug("realtime session connected",
		slog.String("tenant_id", claims.TenantID),
		slog.String("user_id", claims.UserID),
	)

	go session.writePump()
	go session.readPump()
}
