package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"sevenvoices/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newOAuthServer(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer"}`))
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestGitHubExchangeFallsBackToEmailsEndpoint(t *testing.T) {
	srv := newOAuthServer(t, map[string]any{
		"/user": map[string]any{"id": 42, "login": "octocat", "name": "", "avatar_url": "https://example.com/o.png"},
		"/user/emails": []map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	})
	p := &githubIdentityProvider{conf: testOAuthConfig(srv), apiBase: srv.URL}

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, model.OAuthProfile{
		Provider:    model.ProviderGitHub,
		ProviderID:  "42",
		Username:    "octocat",
		DisplayName: "octocat",
		Email:       "octo@example.com",
		AvatarURL:   "https://example.com/o.png",
	}, *profile)
}

func TestGitHubExchangeBadCode(t *testing.T) {
	srv := newOAuthServer(t, nil)
	p := &githubIdentityProvider{conf: testOAuthConfig(srv), apiBase: srv.URL}

	_, err := p.Exchange(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGoogleExchangeDropsUnverifiedEmail(t *testing.T) {
	srv := newOAuthServer(t, map[string]any{
		"/userinfo": map[string]any{"id": "g-1", "email": "jane@example.com", "verified_email": false, "name": "Jane"},
	})
	p := &googleIdentityProvider{conf: testOAuthConfig(srv), userInfoURL: srv.URL + "/userinfo"}

	profile, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "g-1", profile.ProviderID)
	assert.Equal(t, "Jane", profile.Username)
	assert.Empty(t, profile.Email)
}

func TestAuthCodeURLCarriesState(t *testing.T) {
	p := NewGoogleIdentityProvider("client", "secret", "http://localhost/cb")
	u, err := url.Parse(p.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Equal(t, model.ProviderGoogle, p.Name())
}
