package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/timetrack/internal/security/audit"
	"github.com/yourorg/timetrack/internal/security/auth"
	"github.com/yourorg/timetrack/internal/security/ratelimit"
)

type TenantContextKey struct{}
type ClaimsContextKey struct{}

// publicPath reports whether the path is reachable without a token. The
// websocket endpoint authenticates itself at handshake time because browsers
// cannot set an Authorization header on the upgrade request.
func publicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/auth/login", "/api/auth/register":
		return true
	}
	return strings.HasPrefix(path, "/ws")
}

func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			ctx = context.WithValue(ctx, TenantContextKey{}, claims.TenantID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := ""
			if t := r.Context().Value(TenantContextKey{}); t != nil {
				tenantID = t.(string)
			}

			if !limiter.Allow(tenantID) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records lifecycle mutations before they are handled.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := ""
			userID := ""
			if t := r.Context().Value(TenantContextKey{}); t != nil {
				tenantID = t.(string)
			}
			if c := r.Context().Value(ClaimsContextKey{}); c != nil {
				claims := c.(*auth.Claims)
				userID = claims.UserID
			}

			if r.Method == http.MethodPost && r.URL.Path == "/api/time-entries" {
				auditLog.LogTransition(r.Context(), tenantID, userID, "", "start", "initiated")
			}
			if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/time-entries/") {
				// Runs before routing, so the entry id comes from the raw path.
				rest := strings.TrimPrefix(r.URL.Path, "/api/time-entries/")
				if entryID, op, ok := strings.Cut(rest, "/"); ok && (op == "pause" || op == "resume" || op == "stop") {
					auditLog.LogTransition(r.Context(), tenantID, userID, entryID, op, "initiated")
				}
			}
			if r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/api/time-entries/") {
				entryID := strings.TrimPrefix(r.URL.Path, "/api/time-entries/")
				auditLog.LogCorrection(r.Context(), tenantID, userID, entryID, "initiated")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func GetTenantFromContext(ctx context.Context) string {
	if t := ctx.Value(TenantContextKey{}); t != nil {
		return t.(string)
	}
	return ""
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}
