package repository

import (
	"context"
	"errors"
	"fmt"

	"sevenvoices/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEmail is returned when an insert collides with an existing email.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrUserNotFound is returned by updates that matched no user row.
var ErrUserNotFound = errors.New("user not found")

const uniqueViolation = "23505"

const userColumns = `id, username, display_name, email, password_hash, github_id, google_id, avatar_url,
       subscription_plan, subscription_status, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByProviderID(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error)
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	const q = `
        INSERT INTO users (id, username, display_name, email, password_hash, github_id, google_id, avatar_url,
                           subscription_plan, subscription_status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err := r.pool.QueryRow(ctx, q,
		u.UserID,
		u.Username,
		u.DisplayName,
		u.Email,
		u.PasswordHash,
		u.GitHubID,
		u.GoogleID,
		u.AvatarURL,
		u.SubscriptionPlan,
		u.SubscriptionStatus,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "users_email_key" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user %s: %w", u.UserID, err)
	}
	return nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *userRepo) GetUserByProviderID(ctx context.Context, provider model.AuthProvider, providerID string) (*model.User, error) {
	var column string
	switch provider {
	case model.ProviderGitHub:
		column = "github_id"
	case model.ProviderGoogle:
		column = "google_id"
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", provider)
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	return scanUser(r.pool.QueryRow(ctx, q, providerID))
}

// scanUser reads one users row; a missing row yields nil, nil.
func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.UserID,
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.PasswordHash,
		&u.GitHubID,
		&u.GoogleID,
		&u.AvatarURL,
		&u.SubscriptionPlan,
		&u.SubscriptionStatus,
		&u.StripeCustomerID,
		&u.StripeSubscriptionID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
