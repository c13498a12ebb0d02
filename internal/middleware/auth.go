package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

type contextKey string

const (
	TenantKey contextKey = "tenant"
	APIKeyKey contextKey = "api_key"
)

// APIKeyAuth validates API key from Authorization header. validKeys maps
// tenant to key. An empty map disables auth and trusts the URL tenant,
// supaya gampang dipakai lokal.
func APIKeyAuth(validKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(validKeys) == 0 {
				ctx := context.WithValue(r.Context(), TenantKey, chi.URLParam(r, "tenant"))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Extract API key from Authorization header. Browser websockets
			// can't set headers, so api_key query is accepted too.
			auth := r.Header.Get("Authorization")
			if auth == "" {
				auth = r.URL.Query().Get("api_key")
			}
			if auth == "" {
				writeAuthError(w, "missing Authorization header")
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			apiKey := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if apiKey == "" {
				writeAuthError(w, "invalid Authorization header format")
				return
			}

			// Validate API key (constant-time comparison to prevent timing attacks)
			var tenant string
			for t, key := range validKeys {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					tenant = t
					break
				}
			}
			if tenant == "" {
				writeAuthError(w, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, tenant)
			ctx = context.WithValue(ctx, APIKeyKey, apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantFromContext extracts tenant from context
func GetTenantFromContext(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// RequireValidTenant ensures tenant from URL matches authenticated tenant.
// Must be mounted inside a route that has the {tenant} parameter.
func RequireValidTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlTenant := chi.URLParam(r, "tenant")
		if err := ValidateTenantID(urlTenant); err != nil {
			WriteError(w, http.StatusBadRequest, failure.Validation(err.Error()))
			return
		}
		if authTenant := GetTenantFromContext(r.Context()); authTenant != urlTenant {
			WriteError(w, http.StatusForbidden, failure.Validation("tenant mismatch"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
