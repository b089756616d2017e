package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"sevenvoices/internal/api/v1/dto"
	"sevenvoices/internal/middleware"
	"sevenvoices/internal/model"
	"sevenvoices/internal/service"

	"github.com/rs/zerolog"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

// AuthHandler serves password and OAuth login plus session introspection.
type AuthHandler struct {
	authService service.AuthService
	providers   map[model.AuthProvider]service.IdentityProvider
	cookie      middleware.SessionCookie
	frontendURL string
	logger      zerolog.Logger
}

func NewAuthHandler(authService service.AuthService, providers []service.IdentityProvider, cookie middleware.SessionCookie, frontendURL string, logger zerolog.Logger) *AuthHandler {
	byName := make(map[model.AuthProvider]service.IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if frontendURL == "" {
		frontendURL = "/"
	}
	return &AuthHandler{
		authService: authService,
		providers:   byName,
		cookie:      cookie,
		frontendURL: frontendURL,
		logger:      logger.With().Str("handler", "AuthHandler").Logger(),
	}
}

// RegisterRoutes mounts the auth routes
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/signup", h.signup)
	mux.HandleFunc("POST /api/auth/logout", h.logout)
	mux.Handle("GET /api/auth/user", authMw(http.HandlerFunc(h.currentUser)))
	mux.HandleFunc("GET /api/auth/providers", h.listProviders)
	mux.HandleFunc("GET /api/auth/{provider}", h.beginOAuth)
	mux.HandleFunc("GET /api/auth/{provider}/callback", h.oauthCallback)
}

// login godoc
// @Summary Log in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body dto.CredentialsRequest true "Email and password"
// @Success 200 {object} dto.AuthResponseDTO
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, sess, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "Login", "Login failed")
		return
	}
	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, dto.AuthResponseDTO{User: toUserDTO(user), Message: "Logged in successfully"})
}

// signup godoc
// @Summary Create an account with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body dto.CredentialsRequest true "Email and password"
// @Success 200 {object} dto.AuthResponseDTO
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /api/auth/signup [post]
func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, sess, err := h.authService.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "Signup", "Account creation failed")
		return
	}
	h.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, dto.AuthResponseDTO{User: toUserDTO(user), Message: "Account created successfully"})
}

// logout godoc
// @Summary Destroy the current session
// @Tags auth
// @Produce json
// @Success 200 {object} dto.MessageResponseDTO
// @Router /api/auth/logout [post]
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r, h.cookie.Name)
	if err := h.authService.Logout(r.Context(), token); err != nil {
		writeServiceError(w, h.logger, err, "Logout", "Logout failed")
		return
	}
	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, dto.MessageResponseDTO{Message: "Logged out successfully"})
}

// currentUser godoc
// @Summary Return the authenticated user
// @Tags auth
// @Produce json
// @Success 200 {object} dto.UserResponseDTO
// @Failure 401 {object} errorResponse
// @Router /api/auth/user [get]
func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *AuthHandler) listProviders(w http.ResponseWriter, r *http.Request) {
	_, github := h.providers[model.ProviderGitHub]
	_, google := h.providers[model.ProviderGoogle]
	writeJSON(w, http.StatusOK, dto.AuthProvidersResponseDTO{Password: true, GitHub: github, Google: google})
}

func (h *AuthHandler) provider(r *http.Request) (service.IdentityProvider, bool) {
	p, ok := h.providers[model.AuthProvider(r.PathValue("provider"))]
	return p, ok
}

// beginOAuth redirects to the provider's consent page with a fresh state value.
func (h *AuthHandler) beginOAuth(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		writeMessage(w, http.StatusNotImplemented, r.PathValue("provider")+" login not configured")
		return
	}
	state, err := randomState()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate OAuth state")
		writeMessage(w, http.StatusInternalServerError, "Login failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// oauthCallback completes the authorization-code flow and starts a session.
func (h *AuthHandler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		writeMessage(w, http.StatusNotImplemented, r.PathValue("provider")+" login not configured")
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		writeMessage(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	h.clearCookie(w, oauthStateCookie, "/api/auth")

	code := r.URL.Query().Get("code")
	if code == "" {
		h.logger.Info().Str("provider", string(p.Name())).Str("error", r.URL.Query().Get("error")).Msg("OAuth login was not authorized")
		h.redirectWithError(w, r, "oauth_denied")
		return
	}
	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Str("provider", string(p.Name())).Msg("OAuth code exchange failed")
		h.redirectWithError(w, r, "oauth_failed")
		return
	}
	_, sess, err := h.authService.LoginWithOAuth(r.Context(), *profile)
	if err != nil {
		h.logger.Error().Err(err).Str("provider", string(p.Name())).Msg("OAuth login failed")
		h.redirectWithError(w, r, "oauth_failed")
		return
	}
	h.setSessionCookie(w, sess)
	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target, err := url.Parse(h.frontendURL)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	q := target.Query()
	q.Set("error", code)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sess *model.Session) {
	h.cookie.Set(w, sess.Token)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
