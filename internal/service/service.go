// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/llm"
	"github.com/errmate/errmate/internal/model"
)

// Service errors.
var (
	ErrUnauthorized      = errors.New("please sign in or use anonymous mode")
	ErrErrorTextRequired = errors.New("error text is required")
	ErrErrorTextTooLong  = errors.New("error text is too long")
	ErrContextTooLong    = errors.New("context text is too long")
	ErrCompletionFailed  = errors.New("failed to get explanation from AI service")
	ErrNoExplanation     = errors.New("no explanation received from AI service")

	ErrAlreadySubscribed = errors.New("you already have an active subscription")
	ErrNoSubscription    = errors.New("no active subscription found")
	ErrAlreadyCanceling  = errors.New("subscription is already canceled or being canceled")
	ErrNotActive         = errors.New("subscription is not active")
	ErrForbidden         = errors.New("forbidden")
)

// LimitError is returned when a free-tier caller has used the daily quota.
type LimitError struct {
	Used  int
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Daily limit reached. You've used %d of %d free explanations today. Upgrade to Pro for unlimited access.", e.Used, e.Limit)
}

// SubscriptionStore is the subscription state persistence the services need.
type SubscriptionStore interface {
	GetSubscriptionByUserID(ctx context.Context, userID string) (*model.Subscription, error)
	EnsurePendingSubscription(ctx context.Context, userID, customerID string) error
	ApplySubscriptionState(ctx context.Context, u model.SubscriptionUpdate) (bool, error)
}

// UsageStore is the usage ledger persistence.
type UsageStore interface {
	CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error)
	ReserveUsage(ctx context.Context, userID string, since time.Time, limit int, at time.Time) (string, int, error)
	RecordUsage(ctx context.Context, userID string, at time.Time) (string, error)
	ReleaseUsage(ctx context.Context, id string) error
}

// QueryStore persists served explanations.
type QueryStore interface {
	CreateQueryResponse(ctx context.Context, q *model.QueryResponse) error
	ListQueryResponsesByUser(ctx context.Context, userID string, limit int) ([]*model.QueryResponse, error)
}

// BillingProvider is the subset of the billing API used by the services.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, email, userID string) (*billing.Customer, error)
	GetCustomer(ctx context.Context, id string) (*billing.Customer, error)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]*billing.Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// EventDeduper remembers processed webhook event ids.
type EventDeduper interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// CancelAtCache holds cancel-at timestamps learned from the provider.
type CancelAtCache interface {
	GetCancelAt(ctx context.Context, subscriptionID string) (int64, error)
	SetCancelAt(ctx context.Context, subscriptionID string, at int64, ttl time.Duration) error
}
