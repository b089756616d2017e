package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"sevenvoices/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	githubAPIBaseURL      = "https://api.github.com"
	googleUserInfoURL     = "https://www.googleapis.com/oauth2/v2/userinfo"
	identityResponseLimit = 1 << 20
)

// IdentityProvider runs the authorization-code flow against one OAuth provider.
type IdentityProvider interface {
	Name() model.AuthProvider
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the provider's view of the user.
	Exchange(ctx context.Context, code string) (*model.OAuthProfile, error)
}

type githubIdentityProvider struct {
	conf    *oauth2.Config
	apiBase string
}

func NewGitHubIdentityProvider(clientID, clientSecret, redirectURL string) IdentityProvider {
	return &githubIdentityProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: githubAPIBaseURL,
	}
}

func (p *githubIdentityProvider) Name() model.AuthProvider { return model.ProviderGitHub }

func (p *githubIdentityProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *githubIdentityProvider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange github code: %w", err)
	}
	client := p.conf.Client(ctx, tok)

	var ghUser struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, p.apiBase+"/user", &ghUser); err != nil {
		return nil, fmt.Errorf("fetch github user: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("fetch github user: empty id")
	}

	email := ghUser.Email
	if email == "" {
		// Private emails are only listed by the emails endpoint.
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, p.apiBase+"/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
		}
	}

	displayName := ghUser.Name
	if displayName == "" {
		displayName = ghUser.Login
	}
	return &model.OAuthProfile{
		Provider:    model.ProviderGitHub,
		ProviderID:  strconv.FormatInt(ghUser.ID, 10),
		Username:    ghUser.Login,
		DisplayName: displayName,
		Email:       email,
		AvatarURL:   ghUser.AvatarURL,
	}, nil
}

type googleIdentityProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

func NewGoogleIdentityProvider(clientID, clientSecret, redirectURL string) IdentityProvider {
	return &googleIdentityProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *googleIdentityProvider) Name() model.AuthProvider { return model.ProviderGoogle }

func (p *googleIdentityProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *googleIdentityProvider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google code: %w", err)
	}

	var info struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, p.conf.Client(ctx, tok), p.userInfoURL, &info); err != nil {
		return nil, fmt.Errorf("fetch google userinfo: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("fetch google userinfo: empty id")
	}

	username := info.Name
	if username == "" && info.Email != "" {
		username = strings.SplitN(info.Email, "@", 2)[0]
	}
	email := info.Email
	if !info.VerifiedEmail {
		email = ""
	}
	return &model.OAuthProfile{
		Provider:    model.ProviderGoogle,
		ProviderID:  info.ID,
		Username:    username,
		DisplayName: info.Name,
		Email:       email,
		AvatarURL:   info.Picture,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, identityResponseLimit))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.Unmarshal(body, out)
}
