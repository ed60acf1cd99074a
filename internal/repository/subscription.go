package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/errmate/errmate/internal/model"
)

// Common errors for subscription repository operations.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// GetSubscriptionByUserID retrieves the subscription row for a user.
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	query := `
		SELECT id, user_id, COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
		       status, status_observed_at, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`

	var sub model.Subscription
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.Status,
		&sub.StatusObservedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// EnsurePendingSubscription records a checkout attempt.
// A new row starts as pending; an existing row only has its customer id replaced.
func (r *Repository) EnsurePendingSubscription(ctx context.Context, userID, customerID string) error {
	query := `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		ulid.Make().String(),
		userID,
		customerID,
		model.StatusPending,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure pending subscription: %w", err)
	}

	return nil
}

// ApplySubscriptionState upserts a status observation for a user.
//
// The write is a compare-and-swap on status_observed_at: it lands only if no
// newer observation is stored. A canceled observation for the stored
// subscription (or when none is stored) always lands. Empty customer or
// subscription ids keep the stored values. Returns false when the
// observation was stale and nothing changed.
func (r *Repository) ApplySubscriptionState(ctx context.Context, u model.SubscriptionUpdate) (bool, error) {
	query := `
		INSERT INTO subscriptions (
			id, user_id, stripe_customer_id, stripe_subscription_id,
			status, status_observed_at, created_at, updated_at
		)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
			status = EXCLUDED.status,
			status_observed_at = GREATEST(subscriptions.status_observed_at, EXCLUDED.status_observed_at),
			updated_at = EXCLUDED.updated_at
		WHERE subscriptions.status_observed_at IS NULL
		   OR subscriptions.status_observed_at <= EXCLUDED.status_observed_at
		   OR (
				EXCLUDED.status = 'canceled'
				AND (
					subscriptions.stripe_subscription_id IS NULL
					OR EXCLUDED.stripe_subscription_id IS NULL
					OR subscriptions.stripe_subscription_id = EXCLUDED.stripe_subscription_id
				)
		   )
		RETURNING id
	`

	observedAt := u.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	var id string
	err := r.pool.QueryRow(ctx, query,
		ulid.Make().String(),
		u.UserID,
		u.CustomerID,
		u.SubscriptionID,
		u.Status,
		observedAt.UTC(),
		time.Now().UTC(),
	).Scan(&id)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to apply subscription state: %w", err)
	}

	return true, nil
}
