package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gradpath-api/internal/domain"
	jwtinfra "github.com/gradpath-api/internal/infrastructure/jwt"
)

type contextKey string

const ClaimsKey contextKey = "claims"

type snapshotCache interface {
	Get(ctx context.Context, userID string) (*domain.AccountSnapshot, bool)
	Set(ctx context.Context, userID string, snap *domain.AccountSnapshot)
}

type accountStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// Auth returns middleware that validates the Bearer JWT, checks the
// account is still active and injects claims into context.
//
// The active check reads through the snapshot cache: a hit answers from
// the cache, a miss falls back to the user store and repopulates it.
// Hit/miss counters belong to the cache itself. A cached snapshot may
// lag a deactivation by up to the cache TTL; deactivation paths
// invalidate the key to shrink that window.
func Auth(provider *jwtinfra.Provider, cache snapshotCache, users accountStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			snap, ok := cache.Get(r.Context(), claims.UserID)
			if !ok {
				u, err := users.Get(r.Context(), claims.UserID)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "account not found")
					return
				}
				snap = &domain.AccountSnapshot{Active: u.IsActive}
				cache.Set(r.Context(), claims.UserID, snap)
			}
			if !snap.Active {
				writeJSONError(w, http.StatusUnauthorized, "account is deactivated")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}
