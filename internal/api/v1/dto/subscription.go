package dto

// CreateSubscriptionRequest is the body of POST /api/stripe/create-subscription
type CreateSubscriptionRequest struct {
	Plan string `json:"plan" validate:"required"`
}

type CreateSubscriptionResponseDTO struct {
	SubscriptionID string  `json:"subscriptionId"`
	ClientSecret   string  `json:"clientSecret"`
	Plan           string  `json:"plan"`
	Amount         float64 `json:"amount"`
}

// CreatePaymentIntentRequest is the body of POST /api/stripe/create-payment-intent.
// Amount is in dollars.
type CreatePaymentIntentRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Plan   string  `json:"plan,omitempty"`
}

type PaymentIntentResponseDTO struct {
	ClientSecret string `json:"clientSecret"`
}

// SubscriptionStatusResponseDTO is the processor's live view of a subscription
type SubscriptionStatusResponseDTO struct {
	Active            bool   `json:"active"`
	Status            string `json:"status"`
	Plan              string `json:"plan"`
	CurrentPeriodEnd  *int64 `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
}

// CachedSubscriptionResponseDTO is the locally cached subscription projection
type CachedSubscriptionResponseDTO struct {
	SubscriptionPlan      string `json:"subscriptionPlan"`
	SubscriptionStatus    string `json:"subscriptionStatus"`
	HasActiveSubscription bool   `json:"hasActiveSubscription"`
}

type WebhookAckDTO struct {
	Received bool `json:"received"`
}
