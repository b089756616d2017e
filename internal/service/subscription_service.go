package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sevenvoices/internal/model"
	"sevenvoices/internal/notify"
	"sevenvoices/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const notificationTimeout = 10 * time.Second

type planSpec struct {
	Plan        model.SubscriptionPlan
	Name        string
	AmountCents int64
}

var subscriptionPlans = []planSpec{
	{Plan: model.PlanPro, Name: "Pro Plan", AmountCents: 999},
	{Plan: model.PlanPremium, Name: "Premium Plan", AmountCents: 1999},
}

func lookupPlan(plan model.SubscriptionPlan) (planSpec, bool) {
	for _, p := range subscriptionPlans {
		if p.Plan == plan {
			return p, true
		}
	}
	return planSpec{}, false
}

// SubscriptionResult is returned to the client to confirm the first payment.
type SubscriptionResult struct {
	SubscriptionID string
	ClientSecret   string
	Plan           model.SubscriptionPlan
	AmountCents    int64
}

// SubscriptionStatusView is the processor's live status for a user's subscription.
type SubscriptionStatusView struct {
	Active            bool
	Status            string
	Plan              model.SubscriptionPlan
	CurrentPeriodEnd  *int64
	CancelAtPeriodEnd bool
}

// CachedSubscriptionStatus is the locally stored projection of a user's subscription.
type CachedSubscriptionStatus struct {
	SubscriptionPlan      model.SubscriptionPlan
	SubscriptionStatus    model.SubscriptionStatus
	HasActiveSubscription bool
}

// CachedStatusOf reads the subscription projection off a user record without
// calling the processor.
func CachedStatusOf(u *model.User) CachedSubscriptionStatus {
	plan := u.SubscriptionPlan
	if plan == "" {
		plan = model.PlanFree
	}
	status := u.SubscriptionStatus
	if status == "" {
		status = model.StatusInactive
	}
	return CachedSubscriptionStatus{
		SubscriptionPlan:      plan,
		SubscriptionStatus:    status,
		HasActiveSubscription: status == model.StatusActive && plan != model.PlanFree,
	}
}

// SubscriptionService manages processor subscriptions and mirrors their state onto users.
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, userID string, plan model.SubscriptionPlan) (*SubscriptionResult, error)
	GetSubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatusView, error)
	CreatePaymentIntent(ctx context.Context, amount float64, plan string) (string, error)
	HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error
}

type SubscriptionOptions struct {
	WebhookSecret string
	Currency      string
}

type subscriptionService struct {
	processor BillingProcessor
	userRepo  repository.UserRepository
	subRepo   repository.SubscriptionRepository
	notifier  notify.Notifier
	opts      SubscriptionOptions
	logger    zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
// A nil processor leaves every operation failing with ErrNotConfigured.
func NewSubscriptionService(
	processor BillingProcessor,
	userRepo repository.UserRepository,
	subRepo repository.SubscriptionRepository,
	notifier notify.Notifier,
	opts SubscriptionOptions,
	logger zerolog.Logger,
) SubscriptionService {
	if notifier == nil {
		notifier = notify.Noop()
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &subscriptionService{
		processor: processor,
		userRepo:  userRepo,
		subRepo:   subRepo,
		notifier:  notifier,
		opts:      opts,
		logger:    logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// CreateSubscription starts a paid plan for the user.
//
// The active-subscription check and the write of the new subscription id are
// not atomic: two concurrent calls for the same user can both create a
// processor subscription.
func (s *subscriptionService) CreateSubscription(ctx context.Context, userID string, plan model.SubscriptionPlan) (*SubscriptionResult, error) {
	if s.processor == nil {
		return nil, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	if userID == "" {
		return nil, ErrAuthRequired
	}
	spec, ok := lookupPlan(model.SubscriptionPlan(strings.ToLower(string(plan))))
	if !ok {
		return nil, newValidationError("plan", "Plan must be one of: pro, premium")
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for subscription")
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.HasActiveSubscription() {
		return nil, ErrAlreadySubscribed
	}

	customerID, err := s.getOrCreateCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	sub, err := s.processor.CreateSubscription(ctx, CreateSubscriptionParams{
		CustomerID:  customerID,
		UserID:      userID,
		Plan:        spec.Plan,
		ProductName: "7Voices " + spec.Name,
		AmountCents: spec.AmountCents,
		Currency:    s.opts.Currency,
	})
	if err != nil {
		return nil, err
	}

	status := mapProcessorStatus(sub.Status)
	if err := s.subRepo.UpsertStripeSubscription(ctx, userID, model.SubscriptionUpdate{
		SubscriptionID: &sub.ID,
		Status:         &status,
		Plan:           &spec.Plan,
	}); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("subscription_id", sub.ID).Msg("Failed to cache new subscription")
		return nil, fmt.Errorf("cache subscription: %w", err)
	}

	if sub.ClientSecret == "" {
		s.logger.Error().Str("user_id", userID).Str("subscription_id", sub.ID).Msg("Subscription has no confirmation secret")
		return nil, ErrPaymentIncomplete
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("subscription_id", sub.ID).
		Str("plan", string(spec.Plan)).
		Str("status", sub.Status).
		Msg("Subscription created")
	return &SubscriptionResult{
		SubscriptionID: sub.ID,
		ClientSecret:   sub.ClientSecret,
		Plan:           spec.Plan,
		AmountCents:    spec.AmountCents,
	}, nil
}

func (s *subscriptionService) getOrCreateCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	cust, err := s.processor.CreateCustomer(ctx, user.UserID, email)
	if err != nil {
		return "", err
	}
	if err := s.subRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id")
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// GetSubscriptionStatus fetches live status from the processor. The result is
// not written back to the cached projection.
func (s *subscriptionService) GetSubscriptionStatus(ctx context.Context, userID string) (*SubscriptionStatusView, error) {
	if s.processor == nil {
		return nil, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for subscription status")
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return &SubscriptionStatusView{Active: false, Status: "none", Plan: model.PlanFree}, nil
	}

	sub, err := s.processor.GetSubscription(ctx, *user.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	plan := user.SubscriptionPlan
	if plan == "" {
		plan = model.PlanFree
	}
	view := &SubscriptionStatusView{
		Active:            sub.Status == string(stripe.SubscriptionStatusActive),
		Status:            sub.Status,
		Plan:              plan,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd != 0 {
		end := sub.CurrentPeriodEnd
		view.CurrentPeriodEnd = &end
	}
	return view, nil
}

// CreatePaymentIntent starts a one-off payment of amount dollars.
func (s *subscriptionService) CreatePaymentIntent(ctx context.Context, amount float64, plan string) (string, error) {
	if s.processor == nil {
		return "", fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "", newValidationError("amount", "Amount must be a positive number")
	}
	if plan == "" {
		plan = string(model.PlanPro)
	}
	return s.processor.CreatePaymentIntent(ctx, int64(math.Round(amount*100)), s.opts.Currency, plan)
}

// HandleWebhookEvent verifies and applies one processor event. Once the
// signature is valid it returns nil; failures while applying are only logged.
func (s *subscriptionService) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) error {
	if s.processor == nil || s.opts.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook: %w", ErrNotConfigured)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Signature verification failed for Stripe webhook")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	s.logger.Info().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Stripe webhook received")

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		s.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		s.handleInvoice(ctx, event, true)
	case "invoice.payment_failed":
		s.handleInvoice(ctx, event, false)
	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}
	return nil
}

func (s *subscriptionService) handleSubscriptionChanged(ctx context.Context, event stripe.Event) {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Invalid subscription payload")
		return
	}
	sub := subscriptionFromStripe(&ss)

	userID, _, err := s.resolveUser(ctx, sub.CustomerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("subscription_id", sub.ID).Msg("Failed to determine user from subscription")
		return
	}

	status := mapProcessorStatus(sub.Status)
	plan := derivePlan(sub)
	if err := s.subRepo.UpsertStripeSubscription(ctx, userID, model.SubscriptionUpdate{
		SubscriptionID: &sub.ID,
		Status:         &status,
		Plan:           &plan,
	}); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("subscription_id", sub.ID).Msg("Failed to update subscription")
		return
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("subscription_id", sub.ID).
		Str("plan", string(plan)).
		Str("status", sub.Status).
		Msg("Updated user subscription")
}

func (s *subscriptionService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	var ss stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &ss); err != nil {
		s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
		return
	}
	sub := subscriptionFromStripe(&ss)

	userID, _, err := s.resolveUser(ctx, sub.CustomerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("subscription_id", sub.ID).Msg("Failed to determine user from subscription")
		return
	}
	if err := s.subRepo.DowngradeUserToFreePlan(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade user to free plan")
		return
	}
	s.logger.Info().Str("user_id", userID).Str("subscription_id", sub.ID).Msg("Subscription cancelled, downgraded to free")
}

func (s *subscriptionService) handleInvoice(ctx context.Context, event stripe.Event, succeeded bool) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Invalid invoice payload")
		return
	}

	var customerID string
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	// Find subscription ID from line items
	var subID string
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Subscription != nil && line.Subscription.ID != "" {
				subID = line.Subscription.ID
				break
			}
		}
	}
	if customerID == "" || subID == "" {
		s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping subscription update")
		return
	}

	sub, err := s.processor.GetSubscription(ctx, subID)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to fetch subscription for invoice")
		return
	}
	plan := derivePlan(sub)

	userID, email, err := s.resolveUser(ctx, customerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("Failed to determine user from invoice")
	} else {
		status := model.StatusPastDue
		if succeeded {
			status = model.StatusActive
		}
		if err := s.subRepo.UpsertStripeSubscription(ctx, userID, model.SubscriptionUpdate{
			SubscriptionID: &subID,
			Status:         &status,
			Plan:           &plan,
		}); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Str("subscription_id", subID).Msg("Failed to update subscription from invoice")
		} else {
			s.logger.Info().Str("user_id", userID).Str("subscription_id", subID).Str("status", string(status)).Msg("Updated subscription from invoice")
		}
	}

	if !succeeded {
		return
	}
	if email == "" {
		email = invoice.CustomerEmail
	}
	planName := string(plan)
	if spec, ok := lookupPlan(plan); ok {
		planName = spec.Name
	}
	s.notifyPayment(ctx, notify.PaymentNotification{
		Email:       email,
		Plan:        planName,
		AmountCents: invoice.AmountPaid,
	})
}

// notifyPayment sends the notification without blocking the webhook response.
func (s *subscriptionService) notifyPayment(ctx context.Context, n notify.PaymentNotification) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notificationTimeout)
		defer cancel()
		if err := s.notifier.NotifyPayment(ctx, n); err != nil {
			s.logger.Error().Err(err).Str("plan", n.Plan).Msg("Failed to send payment notification")
			return
		}
		s.logger.Info().Str("plan", n.Plan).Msg("Payment notification sent")
	}()
}

// resolveUser finds the local user for a processor customer: first from the
// customer's userId metadata, then by the cached customer id.
func (s *subscriptionService) resolveUser(ctx context.Context, customerID string) (string, string, error) {
	if customerID == "" {
		return "", "", errors.New("cannot determine user: missing customer id")
	}

	var email string
	cust, err := s.processor.GetCustomer(ctx, customerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("stripe_customer_id", customerID).Msg("Failed to fetch customer, falling back to local lookup")
	} else {
		email = cust.Email
		if userID := cust.Metadata["userId"]; userID != "" {
			return userID, email, nil
		}
	}

	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing userId metadata; looking up user by customer ID")
	u, err := s.subRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", email, fmt.Errorf("lookup user by stripe customer id: %w", err)
	}
	if u == nil {
		return "", email, fmt.Errorf("no user found for customer ID: %s", customerID)
	}
	if email == "" && u.Email != nil {
		email = *u.Email
	}
	return u.UserID, email, nil
}

// mapProcessorStatus folds the processor's subscription statuses into the cached enum.
func mapProcessorStatus(status string) model.SubscriptionStatus {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.StatusActive
	case stripe.SubscriptionStatusCanceled:
		return model.StatusCancelled
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.StatusPastDue
	default:
		return model.StatusInactive
	}
}

// derivePlan reads the plan from price metadata, then falls back to matching
// the unit amount against the plan table. Anything else is premium.
func derivePlan(sub *BillingSubscription) model.SubscriptionPlan {
	if p := model.SubscriptionPlan(sub.PriceMetadata["plan"]); p != "" {
		if _, ok := lookupPlan(p); ok {
			return p
		}
	}
	for _, spec := range subscriptionPlans {
		if spec.AmountCents == sub.PriceUnitAmount {
			return spec.Plan
		}
	}
	return model.PlanPremium
}
