package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sevenvoices/internal/model"
	"sevenvoices/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 10
	MinPasswordLength = 6
	// bcrypt rejects longer inputs.
	MaxPasswordBytes  = 72
	sessionTokenBytes = 32

	LoginMethodPassword = "password"
	LoginMethodSignup   = "signup"
)

// AuthService establishes and resolves sessions for email/password and OAuth users.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	Signup(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	LoginWithOAuth(ctx context.Context, profile model.OAuthProfile) (*model.User, *model.Session, error)
	CurrentUser(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, token string) error
}

type SessionOptions struct {
	TTL     time.Duration
	Rolling bool
}

type authService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	opts        SessionOptions
	validate    *validator.Validate
	now         func() time.Time
	logger      zerolog.Logger
}

func NewAuthService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, opts SessionOptions, logger zerolog.Logger) AuthService {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &authService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		opts:        opts,
		validate:    validator.New(),
		now:         time.Now,
		logger:      logger.With().Str("service", "AuthService").Logger(),
	}
}

// dummyHash is compared against when the email is unknown so that both login
// failure paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("sevenvoices-timing-placeholder"), bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("generate placeholder hash: %v", err))
	}
	return h
})

func (s *authService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, newValidationError("email", "Email and password are required")
	}

	u, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch user for login")
		return nil, nil, fmt.Errorf("fetch user by email: %w", err)
	}
	if u == nil || u.PasswordHash == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.createSession(ctx, u.UserID, LoginMethodPassword)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", u.UserID).Msg("User logged in")
	return u, sess, nil
}

func (s *authService) Signup(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)
	if err := s.validateSignup(email, password); err != nil {
		return nil, nil, err
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to check existing user for signup")
		return nil, nil, fmt.Errorf("fetch user by email: %w", err)
	}
	if existing != nil {
		return nil, nil, ErrConflict
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	hashStr := string(hash)
	local := strings.SplitN(email, "@", 2)[0]

	u := &model.User{
		UserID:             uuid.NewString(),
		Username:           &local,
		DisplayName:        &local,
		Email:              &email,
		PasswordHash:       &hashStr,
		SubscriptionPlan:   model.PlanFree,
		SubscriptionStatus: model.StatusInactive,
	}
	if err := s.userRepo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, ErrConflict
		}
		s.logger.Error().Err(err).Msg("Failed to create user")
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.createSession(ctx, u.UserID, LoginMethodSignup)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", u.UserID).Msg("User signed up")
	return u, sess, nil
}

func (s *authService) LoginWithOAuth(ctx context.Context, profile model.OAuthProfile) (*model.User, *model.Session, error) {
	if profile.ProviderID == "" {
		return nil, nil, newValidationError("provider_id", "Provider id is required")
	}

	u, err := s.userRepo.GetUserByProviderID(ctx, profile.Provider, profile.ProviderID)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(profile.Provider)).Msg("Failed to fetch user by provider id")
		return nil, nil, fmt.Errorf("fetch user by provider id: %w", err)
	}
	if u == nil {
		u, err = s.createOAuthUser(ctx, profile)
		if err != nil {
			return nil, nil, err
		}
	}

	sess, err := s.createSession(ctx, u.UserID, string(profile.Provider))
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", u.UserID).Str("provider", string(profile.Provider)).Msg("User logged in with OAuth")
	return u, sess, nil
}

func (s *authService) createOAuthUser(ctx context.Context, profile model.OAuthProfile) (*model.User, error) {
	username := profile.Username
	if username == "" {
		username = profile.DisplayName
	}
	providerID := profile.ProviderID
	u := &model.User{
		UserID:             uuid.NewString(),
		Username:           optionalString(username),
		DisplayName:        optionalString(profile.DisplayName),
		Email:              optionalString(normalizeEmail(profile.Email)),
		AvatarURL:          optionalString(profile.AvatarURL),
		SubscriptionPlan:   model.PlanFree,
		SubscriptionStatus: model.StatusInactive,
	}
	switch profile.Provider {
	case model.ProviderGitHub:
		u.GitHubID = &providerID
	case model.ProviderGoogle:
		u.GoogleID = &providerID
	default:
		return nil, fmt.Errorf("unknown auth provider %q: %w", profile.Provider, ErrNotConfigured)
	}

	err := s.userRepo.CreateUser(ctx, u)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// The email belongs to another account; the OAuth account is created without it.
		s.logger.Warn().Str("provider", string(profile.Provider)).Msg("OAuth email already registered, creating account without email")
		u.Email = nil
		err = s.userRepo.CreateUser(ctx, u)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(profile.Provider)).Msg("Failed to create OAuth user")
		return nil, fmt.Errorf("create oauth user: %w", err)
	}
	return u, nil
}

func (s *authService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrAuthRequired
	}
	sess, err := s.sessionRepo.Get(ctx, token)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to fetch session")
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if sess == nil {
		return nil, ErrAuthRequired
	}

	now := s.now()
	if sess.Expired(now) {
		if err := s.sessionRepo.Delete(ctx, token); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete expired session")
		}
		return nil, ErrAuthRequired
	}

	u, err := s.userRepo.GetUserByID(ctx, sess.Data.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", sess.Data.UserID).Msg("Failed to fetch session user")
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if u == nil {
		if err := s.sessionRepo.Delete(ctx, token); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to delete orphaned session")
		}
		return nil, ErrAuthRequired
	}

	if s.opts.Rolling {
		data := sess.Data
		data.LastActivity = now.UTC()
		if err := s.sessionRepo.Touch(ctx, token, data, now.Add(s.opts.TTL)); err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.UserID).Msg("Failed to extend session")
		}
	}
	return u, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.Delete(ctx, token); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete session")
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *authService) createSession(ctx context.Context, userID, method string) (*model.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	sess := &model.Session{
		Token: token,
		Data: model.SessionData{
			UserID:       userID,
			LoginTime:    now,
			LastActivity: now,
			Method:       method,
		},
		ExpiresAt: now.Add(s.opts.TTL),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist session")
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

type signupInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

func (s *authService) validateSignup(email, password string) error {
	err := s.validate.Struct(signupInput{Email: email, Password: password})
	if err == nil {
		if len(password) > MaxPasswordBytes {
			return newValidationError("password", fmt.Sprintf("Password must be at most %d bytes long", MaxPasswordBytes))
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate signup: %w", err)
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		switch {
		case fe.Field() == "Password" && fe.Tag() == "min":
			ve.Fields = append(ve.Fields, FieldError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)})
		case fe.Field() == "Password":
			ve.Fields = append(ve.Fields, FieldError{Field: "password", Message: "Password is required"})
		case fe.Tag() == "email":
			ve.Fields = append(ve.Fields, FieldError{Field: "email", Message: "Email is invalid"})
		default:
			ve.Fields = append(ve.Fields, FieldError{Field: "email", Message: "Email is required"})
		}
	}
	return ve
}

// newSessionToken returns 256 random bits, base64url encoded.
func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
