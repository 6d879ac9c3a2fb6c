package audit

import (
	"context"
	"log/slog"
	"time"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID := ctx.Value("request_id"); reqID != nil {
		requestID = reqID.(string)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

// LogTransition records a lifecycle operation (start/pause/resume/stop) on an entry.
func (al *Logger) LogTransition(ctx context.Context, tenantID, userID, entryID, op, status string) {
	al.LogAction(ctx, tenantID, userID, op, "time_entry", entryID, status, "")
}

// LogCorrection records an administrative edit of a stopped entry.
func (al *Logger) LogCorrection(ctx context.Context, tenantID, userID, entryID, status string) {
	al.LogAction(ctx, tenantID, userID, "correct", "time_entry", entryID, status, "")
}

// LogDenied records a rejected access attempt.
func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", "denied", reason)
}
