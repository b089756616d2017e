package repository

import (
	"context"
	"fmt"

	"sevenvoices/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for the processor-mirrored billing columns on users.
type SubscriptionRepository interface {
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
	// UpsertStripeSubscription writes the non-nil fields of upd onto the user's cached projection.
	UpsertStripeSubscription(ctx context.Context, userID string, upd model.SubscriptionUpdate) error
	DowngradeUserToFreePlan(ctx context.Context, userID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

// GetUserByStripeCustomerID returns the user owning a cached Stripe customer id, or nil.
func (r *subscriptionRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	return scanUser(r.pool.QueryRow(ctx, q, customerID))
}

func (r *subscriptionRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	const q = `
        UPDATE users
        SET stripe_customer_id = $2,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.pool.Exec(ctx, q, userID, customerID)
	if err != nil {
		return fmt.Errorf("update stripe customer id for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *subscriptionRepo) UpsertStripeSubscription(ctx context.Context, userID string, upd model.SubscriptionUpdate) error {
	const q = `
        UPDATE users
        SET stripe_subscription_id = COALESCE($2, stripe_subscription_id),
            subscription_status = COALESCE($3, subscription_status),
            subscription_plan = COALESCE($4, subscription_plan),
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.pool.Exec(ctx, q, userID, upd.SubscriptionID, upd.Status, upd.Plan)
	if err != nil {
		return fmt.Errorf("upsert stripe subscription for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DowngradeUserToFreePlan resets the cached plan to free and marks the subscription cancelled.
func (r *subscriptionRepo) DowngradeUserToFreePlan(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET
			subscription_plan = 'free',
			subscription_status = 'cancelled',
			updated_at = NOW()
		WHERE
			id = $1;
	`
	tag, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("downgrade user %s to free plan: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
