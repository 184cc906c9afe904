package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/detailcrm/libs/httpx"
)

type ctxKey int

const ctxKeyClaims ctxKey = iota

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(*Claims)
	return c, ok && c != nil
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// BusinessID returns the tenant of the authenticated caller.
func BusinessID(ctx context.Context) string {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.BusinessID
	}
	return ""
}

// RequireAuth rejects requests without a valid Bearer token.
func RequireAuth(s *Signer) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := s.Verify(strings.TrimSpace(token))
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			httpx.TagBusiness(r.Context(), claims.BusinessID)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Authenticated runs RequireAuth and then the given middlewares, which can
// rely on the caller's claims.
func Authenticated(s *Signer, after ...httpx.Middleware) httpx.Middleware {
	authn := RequireAuth(s)
	return func(next http.Handler) http.Handler {
		return authn(httpx.Chain(next, after...))
	}
}

// TenantKey buckets rate limits by the caller's business, falling back to
// the client IP for unauthenticated requests.
func TenantKey(r *http.Request) string {
	if b := BusinessID(r.Context()); b != "" {
		return "tenant:" + b
	}
	return "ip:" + httpx.ClientIP(r)
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) httpx.Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httpx.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
