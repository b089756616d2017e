package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sevenvoices/internal/model"
	"sevenvoices/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	tokens map[string]*model.User
	err    error
}

func (s stubResolver) CurrentUser(_ context.Context, token string) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.tokens[token]; ok {
		return u, nil
	}
	return nil, service.ErrAuthRequired
}

var testCookie = SessionCookie{Name: "sid", MaxAge: time.Hour}

func protected(t *testing.T, resolver SessionResolver) http.Handler {
	t.Helper()
	return protectedWith(t, resolver, testCookie)
}

func protectedWith(t *testing.T, resolver SessionResolver, cookie SessionCookie) http.Handler {
	t.Helper()
	mw := AuthMiddleware(resolver, cookie, zerolog.Nop())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(u.UserID))
	}))
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	h := protected(t, stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.JSONEq(t, `{"message":"Authentication required"}`, resp.Body.String())
}

func TestAuthMiddlewareCookie(t *testing.T) {
	h := protected(t, stubResolver{tokens: map[string]*model.User{"tok": {UserID: "u1"}}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "tok"})
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u1", resp.Body.String())
}

func TestAuthMiddlewareBearerFallback(t *testing.T) {
	h := protected(t, stubResolver{tokens: map[string]*model.User{"tok": {UserID: "u2"}}})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u2", resp.Body.String())
}

func TestAuthMiddlewareUnknownToken(t *testing.T) {
	h := protected(t, stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthMiddlewareLookupFailureIsServerError(t *testing.T) {
	h := protected(t, stubResolver{err: fmt.Errorf("fetch session: %w", errors.New("connection refused"))})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.JSONEq(t, `{"message":"Failed to resolve session"}`, resp.Body.String())
}

func TestAuthMiddlewareRollingRefreshesCookie(t *testing.T) {
	resolver := stubResolver{tokens: map[string]*model.User{"tok": {UserID: "u1"}}}

	tests := []struct {
		name       string
		rolling    bool
		useCookie  bool
		wantCookie bool
	}{
		{"rolling cookie session", true, true, true},
		{"rolling bearer session", true, false, false},
		{"fixed cookie session", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := testCookie
			cookie.Rolling = tt.rolling
			h := protectedWith(t, resolver, cookie)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.useCookie {
				req.AddCookie(&http.Cookie{Name: "sid", Value: "tok"})
			} else {
				req.Header.Set("Authorization", "Bearer tok")
			}
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)
			require.Equal(t, http.StatusOK, resp.Code)

			cookies := resp.Result().Cookies()
			if !tt.wantCookie {
				assert.Empty(t, cookies)
				return
			}
			require.Len(t, cookies, 1)
			assert.Equal(t, "sid", cookies[0].Name)
			assert.Equal(t, "tok", cookies[0].Value)
			assert.Equal(t, 3600, cookies[0].MaxAge)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
}

func TestOptionalAuthMiddlewareLookupFailureServesAnonymously(t *testing.T) {
	h := OptionalAuthMiddleware(stubResolver{err: errors.New("connection refused")}, testCookie, zerolog.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := UserFromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodPost, "/open", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "tok"})
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	resolver := stubResolver{tokens: map[string]*model.User{"tok": {UserID: "u3"}}}
	h := OptionalAuthMiddleware(resolver, testCookie, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := UserFromContext(r.Context()); ok {
			_, _ = w.Write([]byte(u.UserID))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	}))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no token", "", "anonymous"},
		{"unknown token", "Bearer nope", "anonymous"},
		{"live session", "Bearer tok", "u3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/open", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, tt.want, resp.Body.String())
		})
	}
}

func TestSessionTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	assert.Equal(t, "from-cookie", SessionToken(req, "sid"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Empty(t, SessionToken(req, "sid"))
}

func TestLoggerMiddlewareRecordsStatus(t *testing.T) {
	h := LoggerMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/pot", nil))

	assert.Equal(t, http.StatusTeapot, resp.Code)
	assert.Equal(t, "short and stout", resp.Body.String())
}
