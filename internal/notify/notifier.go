package notify

import (
	"context"
	"errors"
	"fmt"
)

// PaymentNotification announces a successful subscription payment.
type PaymentNotification struct {
	Email       string `json:"email"`
	Plan        string `json:"plan"`
	AmountCents int64  `json:"amount_cents"`
}

// Text renders the notification as a short human-readable message.
func (n PaymentNotification) Text() string {
	email := n.Email
	if email == "" {
		email = "Unknown"
	}
	return fmt.Sprintf("New 7Voices payment!\n\nUser: %s\nPlan: %s\nAmount: $%d.%02d\n\nPayment completed successfully.",
		email, n.Plan, n.AmountCents/100, n.AmountCents%100)
}

// Notifier delivers payment notifications to an external channel.
type Notifier interface {
	NotifyPayment(ctx context.Context, n PaymentNotification) error
}

type noop struct{}

// Noop returns a Notifier that drops every notification.
func Noop() Notifier { return noop{} }

func (noop) NotifyPayment(context.Context, PaymentNotification) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyPayment(ctx context.Context, n PaymentNotification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.NotifyPayment(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
