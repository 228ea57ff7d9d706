package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/storefront/catalog/pkg/errors"
	"github.com/storefront/catalog/pkg/httputil"
	"github.com/storefront/catalog/pkg/logger"
)

type contextKeyType string

const claimsKey contextKeyType = "claims"

// RoleAdmin is the role value that grants administrative access.
const RoleAdmin = "admin"

// Claims is the identity extracted from a validated token.
type Claims struct {
	UserID string
	Name   string
	Role   string
}

// IsAdmin reports whether the claims carry the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// TokenValidator validates a raw token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Authenticate requires a valid token on the request. The token is taken from
// the Authorization bearer header, or from cookieName when the header is
// absent and cookieName is not empty.
func Authenticate(validate TokenValidator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractToken(r, cookieName)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("not authorized, no token"), nil)
				return
			}

			claims, err := validate(token)
			if err != nil || claims == nil || claims.UserID == "" {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "token rejected",
					slog.Any("error", err),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("not authorized, token failed"), nil)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", claims.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects authenticated callers without the admin role. It must
// be mounted after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			httputil.WriteError(w, r, apperrors.Unauthorized("not authorized, no token"), nil)
			return
		}
		if !claims.IsAdmin() {
			httputil.WriteError(w, r, apperrors.Forbidden("not authorized as an admin"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

func extractToken(r *http.Request, cookieName string) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") {
			return "", false
		}
		token = strings.TrimSpace(token)
		return token, token != ""
	}

	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
