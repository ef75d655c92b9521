package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// ClaimsFromContext returns the verified claims, or nil on unauthenticated routes.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// SubjectFromContext returns the calling client's name, or "".
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// AuthenticateService admits service tokens, and admin tokens so operators can
// drive the same routes.
func AuthenticateService(m *JWTManager) func(http.Handler) http.Handler {
	return authenticate(m, RealmService, RealmAdmin)
}

// AuthenticateAdmin admits admin tokens only.
func AuthenticateAdmin(m *JWTManager) func(http.Handler) http.Handler {
	return authenticate(m, RealmAdmin)
}

// RequireRole admits admin callers holding min or a higher role.
func RequireRole(min string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "no auth context")
				return
			}
			if !AtLeast(claims.Role, min) {
				deny(w, http.StatusForbidden, "FORBIDDEN", "role "+min+" required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(m *JWTManager, realms ...Realm) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			if err != nil {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			claims, err := m.ValidateTokenForRealm(raw, realms...)
			if err != nil {
				deny(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid Authorization format")
	}
	return strings.TrimSpace(token), nil
}

func deny(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}
