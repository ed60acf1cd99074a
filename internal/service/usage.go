package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/errmate/errmate/internal/cache"
	"github.com/errmate/errmate/internal/metrics"
	"github.com/errmate/errmate/internal/model"
	"github.com/errmate/errmate/internal/repository"
)

// UsageConfig holds the tier limits.
type UsageConfig struct {
	FreeDailyLimit int
	AnonymousLimit int
	Location       *time.Location
	CancelAtTTL    time.Duration
}

// UsageCheck is the result of CheckUsageLimit.
type UsageCheck struct {
	Allowed bool
	Count   int
	Limit   int
	IsPro   bool
}

// Reservation is a granted explanation. Pro grants carry no ledger row.
type Reservation struct {
	ID     string
	UserID string
	Pro    bool
	Count  int
}

// UsageService meters free-tier explanations.
type UsageService struct {
	subs     SubscriptionStore
	usage    UsageStore
	billing  BillingProvider
	cancelAt CancelAtCache
	cfg      UsageConfig
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(subs SubscriptionStore, usage UsageStore, provider BillingProvider, cancelAt CancelAtCache, cfg UsageConfig, logger *slog.Logger, recorder metrics.Recorder) *UsageService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = model.DefaultFreeDailyLimit
	}
	if cfg.AnonymousLimit <= 0 {
		cfg.AnonymousLimit = model.DefaultAnonymousLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &UsageService{
		subs:     subs,
		usage:    usage,
		billing:  provider,
		cancelAt: cancelAt,
		cfg:      cfg,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
	}
}

// FreeDailyLimit returns the configured free-tier limit.
func (s *UsageService) FreeDailyLimit() int {
	return s.cfg.FreeDailyLimit
}

// subscription returns the user's subscription or nil when there is none.
func (s *UsageService) subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	sub, err := s.subs.GetSubscriptionByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CheckUsageLimit reports whether the user may request another explanation.
// Pro users are always allowed with a count of 0.
func (s *UsageService) CheckUsageLimit(ctx context.Context, userID string) (UsageCheck, error) {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return UsageCheck{}, fmt.Errorf("check usage: %w", err)
	}
	if sub.IsPro() {
		return UsageCheck{Allowed: true, IsPro: true}, nil
	}

	count, err := s.usage.CountUsageSince(ctx, userID, s.startOfDay())
	if err != nil {
		return UsageCheck{}, fmt.Errorf("check usage: %w", err)
	}

	return UsageCheck{
		Allowed: count < s.cfg.FreeDailyLimit,
		Count:   count,
		Limit:   s.cfg.FreeDailyLimit,
	}, nil
}

// RecordUsage appends a ledger row for a granted explanation. Pro users are
// skipped.
func (s *UsageService) RecordUsage(ctx context.Context, userID string) error {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	if sub.IsPro() {
		return nil
	}
	if _, err := s.usage.RecordUsage(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Reserve checks the limit and records usage in one step. It returns a
// *LimitError when the free quota is used up.
func (s *UsageService) Reserve(ctx context.Context, userID string) (*Reservation, error) {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}
	if sub.IsPro() {
		return &Reservation{UserID: userID, Pro: true}, nil
	}

	id, count, err := s.usage.ReserveUsage(ctx, userID, s.startOfDay(), s.cfg.FreeDailyLimit, s.now())
	if errors.Is(err, repository.ErrUsageLimitExceeded) {
		s.metrics.IncUsageDenied()
		return nil, &LimitError{Used: count, Limit: s.cfg.FreeDailyLimit}
	}
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}

	return &Reservation{ID: id, UserID: userID, Count: count + 1}, nil
}

// Release gives back a reservation whose explanation was not served.
func (s *UsageService) Release(ctx context.Context, r *Reservation) {
	if r == nil || r.ID == "" {
		return
	}
	if err := s.usage.ReleaseUsage(ctx, r.ID); err != nil {
		s.logger.Error("failed to release usage reservation",
			slog.String("user_id", r.UserID),
			slog.String("reservation_id", r.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Summary reports the caller's quota position. A nil user gets the
// anonymous tier.
func (s *UsageService) Summary(ctx context.Context, user *model.User) (model.UsageSummary, error) {
	if user == nil {
		return model.AnonymousUsage(s.cfg.AnonymousLimit), nil
	}

	sub, err := s.subscription(ctx, user.ID)
	if err != nil {
		return model.UsageSummary{}, fmt.Errorf("usage summary: %w", err)
	}

	if sub.IsPro() {
		summary := model.UsageSummary{IsPro: true, IsCanceling: sub.Status.IsCanceling()}
		if summary.IsCanceling && sub.StripeSubscriptionID != "" {
			summary.CancelAt = s.lookupCancelAt(ctx, sub.StripeSubscriptionID)
		}
		return summary, nil
	}

	count, err := s.usage.CountUsageSince(ctx, user.ID, s.startOfDay())
	if err != nil {
		return model.UsageSummary{}, fmt.Errorf("usage summary: %w", err)
	}
	limit := s.cfg.FreeDailyLimit
	return model.UsageSummary{Count: count, Limit: &limit}, nil
}

// lookupCancelAt reads the cancel time from the cache, then the provider.
// Failures yield 0, which omits the field.
func (s *UsageService) lookupCancelAt(ctx context.Context, subscriptionID string) int64 {
	if s.cancelAt != nil {
		at, err := s.cancelAt.GetCancelAt(ctx, subscriptionID)
		if err == nil {
			return at
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cancel-at cache read failed", slog.String("error", err.Error()))
		}
	}

	if s.billing == nil {
		return 0
	}
	sub, err := s.billing.GetSubscription(ctx, subscriptionID)
	if err != nil {
		s.logger.Warn("failed to look up cancellation time",
			slog.String("subscription_id", subscriptionID),
			slog.String("error", err.Error()),
		)
		return 0
	}

	at := sub.EffectiveCancelAt()
	s.rememberCancelAt(ctx, subscriptionID, at)
	return at
}

func (s *UsageService) rememberCancelAt(ctx context.Context, subscriptionID string, at int64) {
	if s.cancelAt == nil || at == 0 || subscriptionID == "" {
		return
	}
	if err := s.cancelAt.SetCancelAt(ctx, subscriptionID, at, s.cfg.CancelAtTTL); err != nil {
		s.logger.Warn("cancel-at cache write failed", slog.String("error", err.Error()))
	}
}

func (s *UsageService) startOfDay() time.Time {
	return model.StartOfDay(s.now(), s.cfg.Location)
}
