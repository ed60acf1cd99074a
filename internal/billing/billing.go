// Package billing wraps the Stripe API behind the small surface the
// subscription flows need. The Stripe client is constructed per Client
// instance; nothing here touches the package-level stripe.Key.
package billing

import (
	"errors"
	"time"
)

// Metadata key linking a Stripe customer to an internal user id.
const MetadataUserID = "userId"

// Webhook event types handled by the reconciler.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	PaymentStatusPaid         = "paid"
	CheckoutStatusComplete    = "complete"
	SubscriptionStatusAll     = "all"
	defaultProductName        = "ErrMate Pro"
	defaultProductDescription = "Unlimited error explanations"
)

// Billing errors.
var (
	ErrSignatureMissing = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNotFound         = errors.New("billing object not found")
)

// Customer is a Stripe customer.
type Customer struct {
	ID      string
	Email   string
	UserID  string
	Deleted bool
}

// Subscription is a Stripe subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CancelAt          int64
	CurrentPeriodEnd  int64
}

// EffectiveCancelAt is the cancellation time, falling back to the period end.
func (s *Subscription) EffectiveCancelAt() int64 {
	if s == nil {
		return 0
	}
	if s.CancelAt > 0 {
		return s.CancelAt
	}
	return s.CurrentPeriodEnd
}

// CheckoutSession is a Stripe checkout session.
// Subscription is populated only when the session was fetched with it expanded.
type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	SubscriptionID string
	PaymentStatus  string
	Status         string
	Subscription   *Subscription
}

// IsPaid reports whether the checkout finished with payment.
func (c *CheckoutSession) IsPaid() bool {
	return c.PaymentStatus == PaymentStatusPaid || c.Status == CheckoutStatusComplete
}

// CheckoutParams configures a subscription checkout session.
type CheckoutParams struct {
	CustomerID string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// Event is a verified webhook event.
// Exactly one of CheckoutSession or Subscription is set for handled types.
type Event struct {
	ID              string
	Type            string
	Created         time.Time
	CheckoutSession *CheckoutSession
	Subscription    *Subscription
}

// Config configures the Stripe client and the Pro plan price.
type Config struct {
	SecretKey     string
	WebhookSecret string

	// PriceID selects a catalog price. When empty the checkout uses inline
	// price data built from the fields below.
	PriceID            string
	UnitAmount         int64
	Currency           string
	Interval           string
	ProductName        string
	ProductDescription string
}

func (c Config) withDefaults() Config {
	if c.UnitAmount == 0 {
		c.UnitAmount = 999
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.Interval == "" {
		c.Interval = "month"
	}
	if c.ProductName == "" {
		c.ProductName = defaultProductName
	}
	if c.ProductDescription == "" {
		c.ProductDescription = defaultProductDescription
	}
	return c
}
