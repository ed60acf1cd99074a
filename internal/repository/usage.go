package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// ErrUsageLimitExceeded is returned when a reservation would exceed the daily limit.
var ErrUsageLimitExceeded = errors.New("usage limit exceeded")

// CountUsageSince counts usage rows for a user dated at or after since.
func (r *Repository) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_tracking WHERE user_id = $1 AND date >= $2`,
		userID, since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}

// ReserveUsage inserts a usage row only if the user has fewer than limit
// rows dated at or after since. Concurrent reservations for the same user
// are serialized by a transaction-scoped advisory lock.
//
// Returns the new row id and the count before the insert. When the limit is
// reached it returns ErrUsageLimitExceeded with the current count.
func (r *Repository) ReserveUsage(ctx context.Context, userID string, since time.Time, limit int, at time.Time) (string, int, error) {
	var (
		id    string
		count int
	)
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
			return fmt.Errorf("failed to lock usage: %w", err)
		}

		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM usage_tracking WHERE user_id = $1 AND date >= $2`,
			userID, since.UTC(),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count usage: %w", err)
		}
		if count >= limit {
			return ErrUsageLimitExceeded
		}

		id = ulid.Make().String()
		if _, err := tx.Exec(ctx,
			`INSERT INTO usage_tracking (id, user_id, date) VALUES ($1, $2, $3)`,
			id, userID, at.UTC(),
		); err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", count, err
	}
	return id, count, nil
}

// RecordUsage inserts a usage row without a limit check.
func (r *Repository) RecordUsage(ctx context.Context, userID string, at time.Time) (string, error) {
	id := ulid.Make().String()
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO usage_tracking (id, user_id, date) VALUES ($1, $2, $3)`,
		id, userID, at.UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to record usage: %w", err)
	}
	return id, nil
}

// ReleaseUsage removes a reservation for an explanation that was not served.
func (r *Repository) ReleaseUsage(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM usage_tracking WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to release usage: %w", err)
	}
	return nil
}
