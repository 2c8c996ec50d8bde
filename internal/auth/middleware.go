package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// CookieName holds the session token for the server-rendered dashboard.
const CookieName = "billscan_token"

type contextKey struct{}

// WithClaims returns ctx carrying the authenticated user's claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok && c != nil
}

// UserID returns the authenticated user id, or 0.
func UserID(ctx context.Context) int64 {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.UserID
	}
	return 0
}

// TokenFromRequest reads a bearer token from the Authorization header,
// falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth rejects requests without a valid session token with 401.
func RequireAuth(m *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.Validate(TokenFromRequest(r))
			if err != nil {
				slog.WarnContext(r.Context(), "Unauthorized request", "path", r.URL.Path, "error", err)
				msg := ErrInvalidToken.Error()
				if errors.Is(err, ErrMissingToken) {
					msg = ErrMissingToken.Error()
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="billscan"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
