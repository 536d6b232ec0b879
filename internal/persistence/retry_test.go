package persistence_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

func TestRetry(t *testing.T) {
	t.Parallel()

	cfg := persistence.RetryConfig{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	t.Run("retries transient failures until success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := persistence.Retry(context.Background(), cfg, func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("deadlock: %w", persistence.ErrTransient)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := persistence.Retry(context.Background(), cfg, func(context.Context) error {
			calls++
			return persistence.ErrDuplicate
		})
		if !errors.Is(err, persistence.ErrDuplicate) || calls != 1 {
			t.Fatalf("expected one call with ErrDuplicate, got %d calls and %v", calls, err)
		}
	})

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := persistence.Retry(context.Background(), cfg, func(context.Context) error {
			calls++
			return persistence.ErrTransient
		})
		if !persistence.IsTransient(err) || calls != 3 {
			t.Fatalf("expected 3 transient failures, got %d calls and %v", calls, err)
		}
	})

	t.Run("returns when the context is done", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		err := persistence.Retry(ctx, persistence.RetryConfig{Attempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
			cancel()
			return persistence.ErrTransient
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
