// ABOUTME: Tenant resolution middleware
// ABOUTME: Reads X-Auth-Id, falls back to the configured default tenant
package web

import (
	"context"
	"net/http"
	"strings"
)

type tenantKey struct{}

func (s *server) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			tenant = s.defaultTenant
		}
		if tenant == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing "+TenantHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenant)))
	})
}

// TenantFromContext returns the tenant resolved by the middleware.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
