package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/repository"
)

// CheckoutService starts Pro subscriptions.
type CheckoutService struct {
	subs     SubscriptionStore
	provider BillingProvider
	appURL   string
	logger   *slog.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(subs SubscriptionStore, provider BillingProvider, appURL string, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{
		subs:     subs,
		provider: provider,
		appURL:   strings.TrimSuffix(appURL, "/"),
		logger:   logger,
	}
}

// CreateCheckout returns the hosted checkout URL for a Pro subscription.
// The customer is created on first use and the row is left pending until
// the provider confirms payment.
func (s *CheckoutService) CreateCheckout(ctx context.Context, user *model.User) (string, error) {
	if user == nil || user.ID == "" || user.Email == "" {
		return "", ErrUnauthorized
	}

	sub, err := s.subs.GetSubscriptionByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	if sub != nil && sub.Status.IsCancelable() {
		return "", ErrAlreadySubscribed
	}

	customerID := ""
	if sub != nil {
		customerID = sub.StripeCustomerID
	}
	if customerID == "" {
		customer, err := s.provider.CreateCustomer(ctx, user.Email, user.ID)
		if err != nil {
			return "", fmt.Errorf("create checkout: %w", err)
		}
		customerID = customer.ID
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		UserID:     user.ID,
		SuccessURL: s.appURL + "/error-analyzer?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.appURL + "/error-analyzer?canceled=true",
	})
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}

	if err := s.subs.EnsurePendingSubscription(ctx, user.ID, customerID); err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}

	s.logger.Info("checkout session created",
		slog.String("user_id", user.ID),
		slog.String("customer_id", customerID),
		slog.String("session_id", sess.ID),
	)
	return sess.URL, nil
}
