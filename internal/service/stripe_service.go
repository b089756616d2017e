package service

import (
	"context"
	"errors"
	"fmt"

	"sevenvoices/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const ProviderStripe = "stripe"

// BillingCustomer is the processor's customer record.
type BillingCustomer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// BillingSubscription is the processor's view of one subscription.
type BillingSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	Metadata          map[string]string
	PriceUnitAmount   int64
	PriceMetadata     map[string]string
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
	// ClientSecret confirms the first invoice on the client; only set on creation.
	ClientSecret string
}

type CreateSubscriptionParams struct {
	CustomerID  string
	UserID      string
	Plan        model.SubscriptionPlan
	ProductName string
	AmountCents int64
	Currency    string
}

// BillingProcessor is the subset of the payment processor API the subscription manager uses.
type BillingProcessor interface {
	CreateCustomer(ctx context.Context, userID, email string) (*BillingCustomer, error)
	GetCustomer(ctx context.Context, customerID string) (*BillingCustomer, error)
	CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (*BillingSubscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*BillingSubscription, error)
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, plan string) (string, error)
}

// stripeProcessor implements BillingProcessor with an explicitly constructed Stripe client.
type stripeProcessor struct {
	sc     *client.API
	logger zerolog.Logger
}

// NewStripeProcessor creates a BillingProcessor bound to secretKey. backends may be nil.
func NewStripeProcessor(secretKey string, backends *stripe.Backends, logger zerolog.Logger) BillingProcessor {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &stripeProcessor{
		sc:     sc,
		logger: logger.With().Str("service", "StripeProcessor").Logger(),
	}
}

func (s *stripeProcessor) CreateCustomer(ctx context.Context, userID, email string) (*BillingCustomer, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{"userId": userID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx
	cust, err := s.sc.Customers.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe customer")
		return nil, stripeError("create customer", err)
	}
	return customerFromStripe(cust), nil
}

func (s *stripeProcessor) GetCustomer(ctx context.Context, customerID string) (*BillingCustomer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := s.sc.Customers.Get(customerID, params)
	if err != nil {
		s.logger.Error().Err(err).Str("stripe_customer_id", customerID).Msg("Failed to fetch Stripe customer")
		return nil, stripeError("get customer", err)
	}
	return customerFromStripe(cust), nil
}

func (s *stripeProcessor) CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (*BillingSubscription, error) {
	planMeta := map[string]string{"plan": string(p.Plan)}

	priceParams := &stripe.PriceParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.AmountCents),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name:     stripe.String(p.ProductName),
			Metadata: planMeta,
		},
		Metadata: planMeta,
	}
	priceParams.Context = ctx
	price, err := s.sc.Prices.New(priceParams)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("plan", string(p.Plan)).Msg("Failed to create Stripe price")
		return nil, stripeError("create price", err)
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(price.ID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Metadata: map[string]string{"userId": p.UserID, "plan": string(p.Plan)},
	}
	subParams.AddExpand("latest_invoice.confirmation_secret")
	subParams.Context = ctx
	sub, err := s.sc.Subscriptions.New(subParams)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", p.UserID).Str("plan", string(p.Plan)).Msg("Failed to create Stripe subscription")
		return nil, stripeError("create subscription", err)
	}

	out := subscriptionFromStripe(sub)
	if sub.LatestInvoice != nil && sub.LatestInvoice.ConfirmationSecret != nil {
		out.ClientSecret = sub.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	return out, nil
}

func (s *stripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*BillingSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subscriptionID).Msg("Failed to fetch Stripe subscription")
		return nil, stripeError("get subscription", err)
	}
	return subscriptionFromStripe(sub), nil
}

func (s *stripeProcessor) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, plan string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		Metadata: map[string]string{"plan": plan},
	}
	params.Context = ctx
	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", plan).Msg("Failed to create Stripe payment intent")
		return "", stripeError("create payment intent", err)
	}
	return pi.ClientSecret, nil
}

func customerFromStripe(c *stripe.Customer) *BillingCustomer {
	return &BillingCustomer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}
}

func subscriptionFromStripe(sub *stripe.Subscription) *BillingSubscription {
	out := &BillingSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		Metadata:          sub.Metadata,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.PriceUnitAmount = item.Price.UnitAmount
			out.PriceMetadata = item.Price.Metadata
		}
	}
	return out
}

// stripeError translates a Stripe API failure into a ProviderError.
func stripeError(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		kind := ErrInternal
		if classifyProviderStatus(serr.HTTPStatusCode) == ErrProviderUnavailable {
			kind = ErrProviderUnavailable
		}
		return fmt.Errorf("%s: %w", op, &ProviderError{
			Kind:       kind,
			Provider:   ProviderStripe,
			StatusCode: serr.HTTPStatusCode,
			Message:    serr.Msg,
		})
	}
	return fmt.Errorf("%s: %w", op, &ProviderError{Kind: ErrInternal, Provider: ProviderStripe, Message: err.Error()})
}
