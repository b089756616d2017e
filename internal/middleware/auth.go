package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sevenvoices/internal/model"
	"sevenvoices/internal/service"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// SessionResolver maps a session token to its user. It returns an error
// wrapping service.ErrAuthRequired when the token is unknown, expired or its
// user is gone; any other error is a lookup failure.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*model.User, error)
}

// SessionCookie describes the browser session cookie. With Rolling set the
// middleware re-issues it on every authenticated request.
type SessionCookie struct {
	Name    string
	Secure  bool
	MaxAge  time.Duration
	Rolling bool
}

// Set writes the session cookie for token.
func (c SessionCookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken extracts the session token from the named cookie, falling back to
// an "Authorization: Bearer" header.
func SessionToken(r *http.Request, cookieName string) string {
	token, _ := sessionToken(r, cookieName)
	return token
}

func sessionToken(r *http.Request, cookieName string) (token string, fromCookie bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1]), false
	}
	return "", false
}

// AuthMiddleware rejects requests without a live session and stores the
// resolved user in the request context.
func AuthMiddleware(resolver SessionResolver, cookie SessionCookie, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := sessionToken(r, cookie.Name)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			user, err := resolver.CurrentUser(r.Context(), token)
			if err != nil && !errors.Is(err, service.ErrAuthRequired) {
				logger.Error().Err(err).Str("uri", r.URL.RequestURI()).Msg("Failed to resolve session")
				writeError(w, http.StatusInternalServerError, "Failed to resolve session")
				return
			}
			if err != nil || user == nil {
				logger.Debug().Err(err).Str("uri", r.URL.RequestURI()).Msg("Session did not resolve to a user")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if cookie.Rolling && fromCookie {
				cookie.Set(w, token)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, user)))
		})
	}
}

// OptionalAuthMiddleware stores the session user in the request context when the
// request carries a live session, and otherwise passes the request through untouched.
func OptionalAuthMiddleware(resolver SessionResolver, cookie SessionCookie, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := sessionToken(r, cookie.Name)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := resolver.CurrentUser(r.Context(), token)
			switch {
			case err != nil && !errors.Is(err, service.ErrAuthRequired):
				logger.Error().Err(err).Str("uri", r.URL.RequestURI()).Msg("Failed to resolve session, serving anonymously")
			case err == nil && user != nil:
				if cookie.Rolling && fromCookie {
					cookie.Set(w, token)
				}
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*model.User)
	return u, ok && u != nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
