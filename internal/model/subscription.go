package model

import "time"

// SubscriptionStatus mirrors the billing provider's subscription status.
// Provider-native values outside the constants below are stored unchanged.
type SubscriptionStatus string

// Known subscription statuses.
const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusTrialing  SubscriptionStatus = "trialing"
	StatusCanceling SubscriptionStatus = "canceling"
	StatusCanceled  SubscriptionStatus = "canceled"
)

// IsPro reports whether the status grants unlimited explanations.
// Canceling subscriptions stay Pro until the billing period ends.
func (s SubscriptionStatus) IsPro() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusCanceling:
		return true
	}
	return false
}

// IsCanceling reports whether cancellation at period end is scheduled.
func (s SubscriptionStatus) IsCanceling() bool {
	return s == StatusCanceling
}

// IsCancelable reports whether a cancel request may be sent to the provider.
func (s SubscriptionStatus) IsCancelable() bool {
	return s == StatusActive || s == StatusTrialing
}

// DeriveStatus maps a raw provider status onto the stored status.
// An active subscription set to cancel at period end is stored as canceling.
func DeriveStatus(raw string, cancelAtPeriodEnd bool) SubscriptionStatus {
	status := SubscriptionStatus(raw)
	if status == StatusActive && cancelAtPeriodEnd {
		return StatusCanceling
	}
	return status
}

// Subscription is the local record of a user's billing subscription.
// There is at most one per user.
type Subscription struct {
	ID                   string             `json:"id"`
	UserID               string             `json:"user_id"`
	StripeCustomerID     string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty"`
	Status               SubscriptionStatus `json:"status"`
	StatusObservedAt     *time.Time         `json:"status_observed_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// IsPro is nil-safe: a missing subscription is the free tier.
func (s *Subscription) IsPro() bool {
	return s != nil && s.Status.IsPro()
}

// SubscriptionSource identifies the path that produced a status write.
type SubscriptionSource string

// Write paths for subscription state.
const (
	SourceWebhook SubscriptionSource = "webhook"
	SourceSync    SubscriptionSource = "sync"
	SourceCancel  SubscriptionSource = "cancel"
)

// SubscriptionUpdate is a status observation to apply to the store.
// ObservedAt orders competing writes: an observation older than the
// stored one is discarded.
type SubscriptionUpdate struct {
	UserID         string
	CustomerID     string
	SubscriptionID string
	Status         SubscriptionStatus
	ObservedAt     time.Time
	Source         SubscriptionSource
}
