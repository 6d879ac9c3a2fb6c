// Package handler is the HTTP surface. Handlers decode requests, resolve
// the caller's identity from the JWT middleware, delegate to the service
// layer and map domain errors onto status codes. No timer or storage logic
// lives here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/timetrack/internal/domain"
	"github.com/yourorg/timetrack/internal/security"
	"github.com/yourorg/timetrack/internal/security/middleware"
)

// ErrorResponse is the uniform error body. ActiveEntryID is set only on
// start conflicts so clients can offer "resume existing" instead.
type ErrorResponse struct {
	Error         string `json:"error"`
	ActiveEntryID string `json:"activeEntryId,omitempty"`
}

// writeError maps a domain error to a status code and JSON body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		conflict   *domain.ConflictError
		transition *domain.TransitionError
		validation *domain.ValidationError
	)

	body := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body.ActiveEntryID = conflict.ActiveEntryID
	case errors.As(err, &transition):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case domain.IsRetryable(err):
		status = http.StatusServiceUnavailable
		body.Error = "store temporarily unavailable, retry"
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		body.Error = "internal error"
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// identityFrom resolves the caller from the claims the JWT middleware put
// on the request context. false means the middleware never ran, which is a
// routing mistake, not a client error.
func identityFrom(r *http.Request) (security.Identity, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return security.Identity{}, false
	}
	return security.Identity{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
	}, true
}
