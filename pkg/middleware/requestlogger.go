package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalogue-search/pkg/logger"
)

// TenantHeader optionally names the catalogue tenant a request concerns.
const TenantHeader = "X-Catalogue-Tenant"

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, tenant, trace_id and span_id. Handlers retrieve it with
// logger.FromContext.
//
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if tenant := r.Header.Get(TenantHeader); tenant != "" {
				ctx = logger.WithTenant(ctx, tenant)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
