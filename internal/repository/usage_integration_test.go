//go:build integration

package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/errmate/errmate/internal/testutil"
)

func TestIntegrationReserveUsage_EnforcesLimit(t *testing.T) {
	ctx, repo := newTestRepository(t)
	userID := testutil.UniqueID("user")
	now := time.Now().UTC()
	since := now.Add(-time.Hour)

	for i := 0; i < 3; i++ {
		id, before, err := repo.ReserveUsage(ctx, userID, since, 3, now)
		if err != nil {
			t.Fatalf("reservation %d failed: %v", i, err)
		}
		if id == "" || before != i {
			t.Fatalf("reservation %d: id=%q before=%d", i, id, before)
		}
	}

	_, count, err := repo.ReserveUsage(ctx, userID, since, 3, now)
	if !errors.Is(err, ErrUsageLimitExceeded) {
		t.Fatalf("expected ErrUsageLimitExceeded, got %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestIntegrationReserveUsage_Concurrent(t *testing.T) {
	ctx, repo := newTestRepository(t)
	userID := testutil.UniqueID("user")
	now := time.Now().UTC()
	since := now.Add(-time.Hour)

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		denied  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.ReserveUsage(ctx, userID, since, 3, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, ErrUsageLimitExceeded):
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted != 3 || denied != attempts-3 {
		t.Fatalf("expected 3 granted and %d denied, got %d and %d", attempts-3, granted, denied)
	}

	count, err := repo.CountUsageSince(ctx, userID, since)
	if err != nil {
		t.Fatalf("CountUsageSince failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}
}

func TestIntegrationUsage_ReleaseAndWindow(t *testing.T) {
	ctx, repo := newTestRepository(t)
	userID := testutil.UniqueID("user")
	now := time.Now().UTC()
	startOfDay := now.Truncate(24 * time.Hour)

	if _, err := repo.RecordUsage(ctx, userID, startOfDay.Add(-time.Minute)); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	id, _, err := repo.ReserveUsage(ctx, userID, startOfDay, 1, now)
	if err != nil {
		t.Fatalf("yesterday's usage must not count: %v", err)
	}

	if err := repo.ReleaseUsage(ctx, id); err != nil {
		t.Fatalf("ReleaseUsage failed: %v", err)
	}
	count, err := repo.CountUsageSince(ctx, userID, startOfDay)
	if err != nil {
		t.Fatalf("CountUsageSince failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected released reservation to be gone, got %d", count)
	}

	if _, _, err := repo.ReserveUsage(ctx, userID, startOfDay, 1, now); err != nil {
		t.Fatalf("released quota should be reusable: %v", err)
	}
}
