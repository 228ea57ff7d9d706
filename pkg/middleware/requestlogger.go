package middleware

import (
	"log/slog"
	"net/http"

	"github.com/storefront/catalog/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, trace_id and span_id when known. Mount it after
// RequestLogging and Tracing. Routes behind Authenticate get the user id
// re-attached by Authenticate itself.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if claims, ok := ClaimsFromContext(ctx); ok && claims.UserID != "" {
				ctx = logger.WithUserID(ctx, claims.UserID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
