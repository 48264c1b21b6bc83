package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/irodionov/slotbook/libs/auth"
	"github.com/irodionov/slotbook/libs/httpx"
)

type tenantCtxKey struct{}

// WithTenantAuth guards the admin surface: it requires a bearer token signed
// with the shared secret and stashes the token's tenant id in the request
// context. Handlers behind it never trust a tenant id from the request body.
func WithTenantAuth(secret string, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				logger.Warn("admin auth rejected", "err", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.TenantID == "" {
				http.Error(w, "token carries no tenant", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), tenantCtxKey{}, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
