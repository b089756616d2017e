package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"sevenvoices/internal/model"
	"sevenvoices/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T, opts SessionOptions) (*authService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	svc := NewAuthService(store.Users(), store.Sessions(), opts, zerolog.Nop()).(*authService)
	return svc, store
}

func TestSignupThenLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{TTL: time.Hour})

	u, sess, err := svc.Signup(ctx, "Jane@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", *u.Email)
	assert.Equal(t, "jane", *u.Username)
	assert.Equal(t, model.PlanFree, u.SubscriptionPlan)
	assert.Equal(t, model.StatusInactive, u.SubscriptionStatus)
	assert.NotEqual(t, "secret1", *u.PasswordHash)
	assert.Len(t, sess.Token, 43)

	got, err := svc.CurrentUser(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	u2, sess2, err := svc.Login(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, u2.UserID)
	assert.NotEqual(t, sess.Token, sess2.Token)
}

func TestSignupShortPasswordCreatesNoUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t, SessionOptions{})

	_, _, err := svc.Signup(ctx, "a@example.com", "12345")
	require.ErrorIs(t, err, ErrValidation)

	u, err := store.Users().GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSignupPasswordByteLimit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t, SessionOptions{})

	_, _, err := svc.Signup(ctx, "max@example.com", strings.Repeat("a", MaxPasswordBytes))
	require.NoError(t, err)

	_, _, err = svc.Signup(ctx, "long@example.com", strings.Repeat("a", MaxPasswordBytes+1))
	require.ErrorIs(t, err, ErrValidation)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "password", ve.Fields[0].Field)
	assert.Equal(t, "Password must be at most 72 bytes long", ve.Fields[0].Message)

	u, err := store.Users().GetUserByEmail(ctx, "long@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestSignupRejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestAuth(t, SessionOptions{})

	_, _, err := svc.Signup(context.Background(), "not-an-email", "secret1")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})

	_, _, err := svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, _, err = svc.Signup(ctx, "a@example.com", "another1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})
	_, _, err := svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, _, wrongPassword := svc.Login(ctx, "a@example.com", "wrong-password")
	_, _, unknownEmail := svc.Login(ctx, "b@example.com", "secret1")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginRejectsOAuthOnlyAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})
	_, _, err := svc.LoginWithOAuth(ctx, model.OAuthProfile{
		Provider: model.ProviderGitHub, ProviderID: "1", Username: "octo", Email: "octo@example.com",
	})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "octo@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})
	_, sess, err := svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.Token))
	_, err = svc.CurrentUser(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrAuthRequired)

	// Idempotent.
	require.NoError(t, svc.Logout(ctx, sess.Token))
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestCurrentUserExpiry(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestAuth(t, SessionOptions{TTL: time.Hour})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, sess, err := svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = svc.CurrentUser(ctx, sess.Token)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = svc.CurrentUser(ctx, sess.Token)
	require.ErrorIs(t, err, ErrAuthRequired)

	// Expired sessions are removed on lookup.
	stored, err := store.Sessions().Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCurrentUserRollingExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{TTL: time.Hour, Rolling: true})
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, sess, err := svc.Signup(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		now = now.Add(45 * time.Minute)
		_, err = svc.CurrentUser(ctx, sess.Token)
		require.NoError(t, err, "lookup %d", i)
	}

	now = now.Add(61 * time.Minute)
	_, err = svc.CurrentUser(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestCurrentUserUnknownOrMissingToken(t *testing.T) {
	svc, _ := newTestAuth(t, SessionOptions{})

	_, err := svc.CurrentUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = svc.CurrentUser(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestCurrentUserDeletedUser(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewAuthService(store.Users(), store.Sessions(), SessionOptions{}, zerolog.Nop())

	require.NoError(t, store.Sessions().Create(ctx, &model.Session{
		Token:     "orphan",
		Data:      model.SessionData{UserID: "gone"},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	_, err := svc.CurrentUser(ctx, "orphan")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestLoginWithOAuthCreatesOnceThenReuses(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})
	profile := model.OAuthProfile{
		Provider:    model.ProviderGoogle,
		ProviderID:  "g-123",
		Username:    "Jane Doe",
		DisplayName: "Jane Doe",
		Email:       "jane@example.com",
		AvatarURL:   "https://example.com/a.png",
	}

	first, sess, err := svc.LoginWithOAuth(ctx, profile)
	require.NoError(t, err)
	require.NotNil(t, first.GoogleID)
	assert.Equal(t, "g-123", *first.GoogleID)
	assert.Nil(t, first.GitHubID)
	assert.Nil(t, first.PasswordHash)
	assert.Equal(t, "google", sess.Data.Method)

	second, _, err := svc.LoginWithOAuth(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
}

func TestLoginWithOAuthEmailTakenByPasswordAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuth(t, SessionOptions{})
	pwUser, _, err := svc.Signup(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)

	ghUser, _, err := svc.LoginWithOAuth(ctx, model.OAuthProfile{
		Provider: model.ProviderGitHub, ProviderID: "7", Username: "jane", Email: "jane@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, pwUser.UserID, ghUser.UserID)
	assert.Nil(t, ghUser.Email)
}
