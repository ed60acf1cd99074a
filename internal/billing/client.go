package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Client is a Stripe-backed billing provider.
type Client struct {
	api    *client.API
	cfg    Config
	logger *slog.Logger
}

// NewClient builds a Stripe API client from cfg.
// An empty apiURL targets the live Stripe API; tests point it at a local server.
func NewClient(cfg Config, apiURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if apiURL != "" {
		backendCfg.URL = stripe.String(apiURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	return &Client{
		api:    client.New(cfg.SecretKey, backends),
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// CreateCustomer creates a customer tagged with the internal user id.
func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", mapError(err))
	}
	return customerFromStripe(cust), nil
}

// GetCustomer retrieves a customer by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, mapError(err))
	}
	return customerFromStripe(cust), nil
}

// CreateCheckoutSession starts a monthly subscription checkout for the Pro plan.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{c.lineItem()},
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
	}
	if p.UserID != "" {
		params.ClientReferenceID = stripe.String(p.UserID)
		params.AddMetadata(MetadataUserID, p.UserID)
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", mapError(err))
	}
	return checkoutFromStripe(sess), nil
}

func (c *Client) lineItem() *stripe.CheckoutSessionLineItemParams {
	if c.cfg.PriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(c.cfg.PriceID),
			Quantity: stripe.Int64(1),
		}
	}

	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(c.cfg.Currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name:        stripe.String(c.cfg.ProductName),
				Description: stripe.String(c.cfg.ProductDescription),
			},
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval: stripe.String(c.cfg.Interval),
			},
			UnitAmount: stripe.Int64(c.cfg.UnitAmount),
		},
		Quantity: stripe.Int64(1),
	}
}

// GetCheckoutSession retrieves a checkout session with its subscription expanded.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	sess, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", id, mapError(err))
	}
	return checkoutFromStripe(sess), nil
}

// GetSubscription retrieves a subscription by id.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, mapError(err))
	}
	return subscriptionFromStripe(sub), nil
}

// ListSubscriptions returns up to limit subscriptions of any status for a customer.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(SubscriptionStatusAll),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var subs []*Subscription
	iter := c.api.Subscriptions.List(params)
	for iter.Next() && len(subs) < limit {
		subs = append(subs, subscriptionFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", customerID, mapError(err))
	}
	return subs, nil
}

// CancelAtPeriodEnd schedules cancellation at the end of the current period.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", subscriptionID, mapError(err))
	}
	return subscriptionFromStripe(sub), nil
}

// ConstructEvent verifies a webhook payload against the configured secret.
func (c *Client) ConstructEvent(payload []byte, signature string) (*Event, error) {
	return ParseEvent(payload, signature, c.cfg.WebhookSecret)
}

func mapError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
	}
	return err
}

func customerFromStripe(c *stripe.Customer) *Customer {
	if c == nil {
		return nil
	}
	return &Customer{
		ID:      c.ID,
		Email:   c.Email,
		UserID:  c.Metadata[MetadataUserID],
		Deleted: c.Deleted,
	}
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	if s == nil {
		return nil
	}
	sub := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CancelAt:          s.CancelAt,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	return sub
}

func checkoutFromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	if s == nil {
		return nil
	}
	sess := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		Status:        string(s.Status),
	}
	if s.Customer != nil {
		sess.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		sess.SubscriptionID = s.Subscription.ID
		// An unexpanded subscription only carries its id.
		if s.Subscription.Status != "" {
			sess.Subscription = subscriptionFromStripe(s.Subscription)
		}
	}
	return sess
}

// leveledLogger routes stripe-go client logs through slog.
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
