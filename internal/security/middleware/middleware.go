package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yourorg/licensegate/internal/featureflags"
	"github.com/yourorg/licensegate/internal/security/audit"
	"github.com/yourorg/licensegate/internal/security/auth"
	"github.com/yourorg/licensegate/internal/security/ratelimit"
)

type ClaimsContextKey struct{}

// Credential endpoints get 10 attempts per address per window.
const limiterWindow = time.Minute

// SessionChecker reports whether a session has been terminated
type SessionChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// isPublic lists the endpoints reachable without a session. GET /licenses is
// only public in legacy mode, behind an explicit flag.
func isPublic(r *http.Request) bool {
	switch r.URL.Path {
	case "/login", "/signup", "/healthz", "/readyz", "/metrics":
		return true
	case "/licenses":
		return r.Method == http.MethodGet && featureflags.Enabled(featureflags.PublicListing)
	}
	return false
}

// JWTMiddleware authenticates every non-public request: bearer token must
// parse, verify, and not appear on the logout denylist.
func JWTMiddleware(tm *auth.TokenManager, sessions SessionChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}

			revoked, err := sessions.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				// Fail closed: if the denylist is unreachable we cannot prove
				// the session is still live.
				log.Error("session check failed", slog.String("error", err.Error()))
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}
			if revoked {
				http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles per principal, with strict per-address
// limits on the credential endpoints to damp brute forcing.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/login" || r.URL.Path == "/signup" {
				if !limiter.AllowStrict(remoteAddr(r), 10, limiterWindow) {
					http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			key := ""
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				key = claims.UserID
			}
			if !limiter.Allow(key) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware records mutating requests before they reach a handler
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				tenantID := ""
				userID := ""
				if claims := GetClaimsFromContext(r.Context()); claims != nil {
					tenantID = claims.TenantID
					userID = claims.UserID
				}
				auditLog.LogAction(r.Context(), tenantID, userID, "request", "api", r.URL.Path, "initiated", "")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
