package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/errmate/errmate/internal/billing"
	"github.com/errmate/errmate/internal/metrics"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/repository"
)

// syncListLimit bounds the provider subscriptions inspected by a pending sync.
const syncListLimit = 5

// SubscriptionService keeps the local subscription row in step with the
// billing provider. Every status write goes through apply.
type SubscriptionService struct {
	subs     SubscriptionStore
	provider BillingProvider
	usage    *UsageService
	events   EventDeduper
	eventTTL time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
// events may be nil, which disables webhook replay detection.
func NewSubscriptionService(subs SubscriptionStore, provider BillingProvider, usage *UsageService, events EventDeduper, eventTTL time.Duration, logger *slog.Logger, recorder metrics.Recorder) *SubscriptionService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		subs:     subs,
		provider: provider,
		usage:    usage,
		events:   events,
		eventTTL: eventTTL,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
	}
}

// SyncResult is the outcome of a sync request.
type SyncResult struct {
	Updated bool               `json:"updated"`
	Usage   model.UsageSummary `json:"usage"`
}

// CancelResult is the outcome of a cancel request.
type CancelResult struct {
	CancelAt int64
}

func (s *SubscriptionService) apply(ctx context.Context, u model.SubscriptionUpdate) (bool, error) {
	applied, err := s.subs.ApplySubscriptionState(ctx, u)
	if err != nil {
		return false, err
	}
	s.metrics.IncSubscriptionWrite(string(u.Source), applied)

	if !applied {
		s.logger.Info("stale subscription update dropped",
			slog.String("user_id", u.UserID),
			slog.String("status", string(u.Status)),
			slog.String("source", string(u.Source)),
			slog.Time("observed_at", u.ObservedAt),
		)
	}
	return applied, nil
}

// HandleEvent applies a verified webhook event. Events whose customer has
// no user mapping are logged and dropped. Replayed event ids are skipped.
func (s *SubscriptionService) HandleEvent(ctx context.Context, ev *billing.Event) error {
	if s.events != nil && ev.ID != "" {
		fresh, err := s.events.MarkEventSeen(ctx, ev.ID, s.eventTTL)
		if err != nil {
			s.logger.Warn("webhook dedupe unavailable", slog.String("error", err.Error()))
		} else if !fresh {
			s.metrics.IncWebhookEvent(ev.Type, metrics.WebhookDuplicate)
			s.logger.Info("duplicate webhook event skipped", slog.String("event_id", ev.ID))
			return nil
		}
	}

	handled, err := s.handleEvent(ctx, ev)
	switch {
	case err != nil:
		s.metrics.IncWebhookEvent(ev.Type, metrics.WebhookFailed)
		if s.events != nil && ev.ID != "" {
			// The webhook is acknowledged regardless, so only a manual resend of
			// the same event can run it again.
			if ferr := s.events.ForgetEvent(context.WithoutCancel(ctx), ev.ID); ferr != nil {
				s.logger.Warn("failed to forget webhook event",
					slog.String("event_id", ev.ID),
					slog.String("error", ferr.Error()),
				)
			}
		}
		return fmt.Errorf("handle %s event %s: %w", ev.Type, ev.ID, err)
	case handled:
		s.metrics.IncWebhookEvent(ev.Type, metrics.WebhookProcessed)
	default:
		s.metrics.IncWebhookEvent(ev.Type, metrics.WebhookIgnored)
	}
	return nil
}

func (s *SubscriptionService) handleEvent(ctx context.Context, ev *billing.Event) (bool, error) {
	switch ev.Type {
	case billing.EventCheckoutCompleted:
		if ev.CheckoutSession == nil {
			return false, nil
		}
		return s.onCheckoutCompleted(ctx, ev.CheckoutSession, ev.Created)

	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		if ev.Subscription == nil {
			return false, nil
		}
		sub := ev.Subscription
		return s.onSubscriptionChange(ctx, sub, model.DeriveStatus(sub.Status, sub.CancelAtPeriodEnd), ev.Created)

	case billing.EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return false, nil
		}
		return s.onSubscriptionChange(ctx, ev.Subscription, model.StatusCanceled, ev.Created)
	}
	return false, nil
}

func (s *SubscriptionService) onCheckoutCompleted(ctx context.Context, sess *billing.CheckoutSession, observedAt time.Time) (bool, error) {
	if sess.CustomerID == "" {
		s.logger.Error("no customer in checkout session", slog.String("session_id", sess.ID))
		return false, nil
	}

	userID, err := s.userForCustomer(ctx, sess.CustomerID)
	if err != nil || userID == "" {
		return false, err
	}

	status := model.StatusPending
	if sess.IsPaid() {
		status = model.StatusActive
	}
	if sess.SubscriptionID != "" {
		sub, err := s.provider.GetSubscription(ctx, sess.SubscriptionID)
		if err != nil {
			s.logger.Error("failed to retrieve subscription for checkout",
				slog.String("subscription_id", sess.SubscriptionID),
				slog.String("error", err.Error()),
			)
		} else {
			status = model.DeriveStatus(sub.Status, sub.CancelAtPeriodEnd)
		}
	}

	_, err = s.apply(ctx, model.SubscriptionUpdate{
		UserID:         userID,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		Status:         status,
		ObservedAt:     observedAt,
		Source:         model.SourceWebhook,
	})
	return err == nil, err
}

func (s *SubscriptionService) onSubscriptionChange(ctx context.Context, sub *billing.Subscription, status model.SubscriptionStatus, observedAt time.Time) (bool, error) {
	if sub.CustomerID == "" {
		s.logger.Error("no customer in subscription", slog.String("subscription_id", sub.ID))
		return false, nil
	}

	userID, err := s.userForCustomer(ctx, sub.CustomerID)
	if err != nil || userID == "" {
		return false, err
	}

	if _, err := s.apply(ctx, model.SubscriptionUpdate{
		UserID:         userID,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Status:         status,
		ObservedAt:     observedAt,
		Source:         model.SourceWebhook,
	}); err != nil {
		return false, err
	}

	if status.IsCanceling() {
		s.usage.rememberCancelAt(ctx, sub.ID, sub.EffectiveCancelAt())
	}
	return true, nil
}

// userForCustomer recovers the internal user id from customer metadata.
// A customer without one yields "" and a logged error.
func (s *SubscriptionService) userForCustomer(ctx context.Context, customerID string) (string, error) {
	customer, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("retrieve customer %s: %w", customerID, err)
	}
	if customer.UserID == "" {
		s.logger.Error("no userId in customer metadata", slog.String("customer_id", customerID))
		return "", nil
	}
	return customer.UserID, nil
}

// Sync pulls the provider's view of the user's subscription. With a
// checkout session id it reconciles that session; otherwise it only acts
// when the stored row is still pending.
func (s *SubscriptionService) Sync(ctx context.Context, user *model.User, sessionID string) (*SyncResult, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthorized
	}

	var (
		updated bool
		err     error
	)
	if sessionID != "" {
		updated, err = s.syncCheckoutSession(ctx, user.ID, sessionID)
	} else {
		updated, err = s.syncPending(ctx, user.ID)
	}
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.Summary(ctx, user)
	if err != nil {
		return nil, err
	}
	return &SyncResult{Updated: updated, Usage: usage}, nil
}

func (s *SubscriptionService) syncCheckoutSession(ctx context.Context, userID, sessionID string) (bool, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("sync checkout session: %w", err)
	}
	if !sess.IsPaid() || sess.CustomerID == "" {
		return false, nil
	}

	customer, err := s.provider.GetCustomer(ctx, sess.CustomerID)
	if err != nil {
		return false, fmt.Errorf("sync checkout session: %w", err)
	}
	if customer.UserID != userID {
		return false, ErrForbidden
	}

	status := model.StatusActive
	if sess.Subscription != nil {
		status = model.DeriveStatus(sess.Subscription.Status, sess.Subscription.CancelAtPeriodEnd)
	}

	applied, err := s.apply(ctx, model.SubscriptionUpdate{
		UserID:         userID,
		CustomerID:     sess.CustomerID,
		SubscriptionID: sess.SubscriptionID,
		Status:         status,
		ObservedAt:     s.now(),
		Source:         model.SourceSync,
	})
	if err != nil {
		return false, fmt.Errorf("sync checkout session: %w", err)
	}
	if applied && sess.Subscription != nil && status.IsCanceling() {
		s.usage.rememberCancelAt(ctx, sess.SubscriptionID, sess.Subscription.EffectiveCancelAt())
	}
	return applied, nil
}

func (s *SubscriptionService) syncPending(ctx context.Context, userID string) (bool, error) {
	sub, err := s.subs.GetSubscriptionByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sync subscription: %w", err)
	}
	if sub.StripeCustomerID == "" || sub.Status != model.StatusPending {
		return false, nil
	}

	list, err := s.provider.ListSubscriptions(ctx, sub.StripeCustomerID, syncListLimit)
	if err != nil {
		return false, fmt.Errorf("sync subscription: %w", err)
	}

	var found *billing.Subscription
	for _, candidate := range list {
		if st := model.SubscriptionStatus(candidate.Status); st.IsCancelable() {
			found = candidate
			break
		}
	}
	if found == nil {
		return false, nil
	}

	status := model.DeriveStatus(found.Status, found.CancelAtPeriodEnd)
	applied, err := s.apply(ctx, model.SubscriptionUpdate{
		UserID:         userID,
		CustomerID:     sub.StripeCustomerID,
		SubscriptionID: found.ID,
		Status:         status,
		ObservedAt:     s.now(),
		Source:         model.SourceSync,
	})
	if err != nil {
		return false, fmt.Errorf("sync subscription: %w", err)
	}
	if applied && status.IsCanceling() {
		s.usage.rememberCancelAt(ctx, found.ID, found.EffectiveCancelAt())
	}
	return applied, nil
}

// Cancel schedules cancellation at period end. The stored status is checked
// before the provider is called.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	sub, err := s.subs.GetSubscriptionByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if sub.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	if sub.Status == model.StatusCanceling || sub.Status == model.StatusCanceled {
		return nil, ErrAlreadyCanceling
	}
	if !sub.Status.IsCancelable() {
		return nil, ErrNotActive
	}

	remote, err := s.provider.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	status := model.SubscriptionStatus(remote.Status)
	if remote.CancelAtPeriodEnd {
		status = model.StatusCanceling
	}

	if _, err := s.apply(ctx, model.SubscriptionUpdate{
		UserID:         userID,
		SubscriptionID: sub.StripeSubscriptionID,
		Status:         status,
		ObservedAt:     s.now(),
		Source:         model.SourceCancel,
	}); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	cancelAt := remote.EffectiveCancelAt()
	s.usage.rememberCancelAt(ctx, sub.StripeSubscriptionID, cancelAt)

	s.logger.Info("subscription set to cancel at period end",
		slog.String("user_id", userID),
		slog.String("subscription_id", sub.StripeSubscriptionID),
		slog.Int64("cancel_at", cancelAt),
	)
	return &CancelResult{CancelAt: cancelAt}, nil
}
