package http

import (
	"net/http"
	"strings"

	"github.com/storefront/catalog/internal/domain"
	"github.com/storefront/catalog/pkg/httputil"
	"github.com/storefront/catalog/pkg/middleware"
)

// principalFromRequest returns the authenticated caller, or the zero
// Principal on public routes.
func principalFromRequest(r *http.Request) domain.Principal {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return domain.Principal{}
	}
	return domain.Principal{
		ID:      claims.UserID,
		Name:    claims.Name,
		IsAdmin: claims.IsAdmin(),
	}
}

// ContentTypeJSON rejects request bodies that are declared as something other
// than JSON. A missing Content-Type is accepted.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorEnvelope{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
						Status:  http.StatusUnsupportedMediaType,
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
