package model

import "time"

// SubscriptionPlan is the plan tier cached on a user record.
type SubscriptionPlan string

const (
	PlanFree    SubscriptionPlan = "free"
	PlanPro     SubscriptionPlan = "pro"
	PlanPremium SubscriptionPlan = "premium"
)

// SubscriptionStatus is the last-known processor status cached on a user record.
type SubscriptionStatus string

const (
	StatusInactive  SubscriptionStatus = "inactive"
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
)

// AuthProvider names an external identity provider.
type AuthProvider string

const (
	ProviderGitHub AuthProvider = "github"
	ProviderGoogle AuthProvider = "google"
)

// User represents a user in the system
type User struct {
	UserID               string             `db:"id" json:"id"`
	Username             *string            `db:"username" json:"username,omitempty"`
	DisplayName          *string            `db:"display_name" json:"display_name,omitempty"`
	Email                *string            `db:"email" json:"email,omitempty"`
	PasswordHash         *string            `db:"password_hash" json:"-"`
	GitHubID             *string            `db:"github_id" json:"github_id,omitempty"`
	GoogleID             *string            `db:"google_id" json:"google_id,omitempty"`
	AvatarURL            *string            `db:"avatar_url" json:"avatar_url,omitempty"`
	SubscriptionPlan     SubscriptionPlan   `db:"subscription_plan" json:"subscription_plan"`
	SubscriptionStatus   SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	StripeCustomerID     *string            `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// HasActiveSubscription reports whether the cached projection says the user is paying.
func (u *User) HasActiveSubscription() bool {
	return u.SubscriptionStatus == StatusActive && u.StripeSubscriptionID != nil && *u.StripeSubscriptionID != ""
}

// OAuthProfile is the identity returned by an OAuth provider after a code exchange.
type OAuthProfile struct {
	Provider    AuthProvider
	ProviderID  string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
}

// SubscriptionUpdate carries the processor-mirrored fields written onto a user.
// Nil fields are left untouched.
type SubscriptionUpdate struct {
	SubscriptionID *string
	Status         *SubscriptionStatus
	Plan           *SubscriptionPlan
}
