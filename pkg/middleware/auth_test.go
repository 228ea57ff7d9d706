package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubValidator(tokens map[string]*Claims) TokenValidator {
	return func(token string) (*Claims, error) {
		c, ok := tokens[token]
		if !ok {
			return nil, errors.New("bad token")
		}
		return c, nil
	}
}

var testTokens = map[string]*Claims{
	"user-token":  {UserID: "u1", Name: "Jane Doe", Role: "customer"},
	"admin-token": {UserID: "a1", Name: "Admin User", Role: RoleAdmin},
	"no-subject":  {Name: "Nobody"},
}

func authedHandler(t *testing.T, seen **Claims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		*seen = c
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate_BearerHeader(t *testing.T) {
	var seen *Claims
	h := Authenticate(stubValidator(testTokens), "jwt")(authedHandler(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
	assert.Equal(t, "Jane Doe", seen.Name)
	assert.False(t, seen.IsAdmin())
}

func TestAuthenticate_Cookie(t *testing.T) {
	var seen *Claims
	h := Authenticate(stubValidator(testTokens), "jwt")(authedHandler(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "admin-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.True(t, seen.IsAdmin())
}

func TestAuthenticate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
	}{
		{"no credentials", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"empty bearer", "Bearer ", ""},
		{"unknown token", "Bearer forged", ""},
		{"token without subject", "Bearer no-subject", ""},
		{"unknown cookie", "", "forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := Authenticate(stubValidator(testTokens), "jwt")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "jwt", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
			assert.False(t, called)
		})
	}
}

func TestAuthenticate_CookieIgnoredWhenNameEmpty(t *testing.T) {
	h := Authenticate(stubValidator(testTokens), "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "user-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Authenticate(stubValidator(testTokens), "jwt")(RequireAdmin(ok))

	tests := []struct {
		token string
		want  int
	}{
		{"admin-token", http.StatusOK},
		{"user-token", http.StatusForbidden},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tt.token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.token)
	}
}

func TestRequireAdmin_WithoutAuthenticate(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaims_IsAdminNilSafe(t *testing.T) {
	var c *Claims
	assert.False(t, c.IsAdmin())
}
