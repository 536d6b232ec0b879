package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/memory"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
)

func TestStorageContract(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return memory.New()
	})
}

func TestBookingTxHonoursCancellation(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seed := persistencetest.SeedCatalog(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinBookingTx(ctx, seed.ResourceID, seed.AgentID, func(persistence.BookingTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("transaction body must not run after cancellation")
	}
}

func TestStagedWritesVisibleInsideTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	seed := persistencetest.SeedCatalog(t, store)

	r := seed.Reservation("res-1", 0, 1, "confirmed")
	err := store.WithinBookingTx(ctx, seed.ResourceID, seed.AgentID, func(tx persistence.BookingTx) error {
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		got, err := tx.ConfirmedOverlapping(ctx, seed.ResourceID, "", r.Start, r.End)
		if err != nil {
			return err
		}
		if len(got) != 1 {
			t.Errorf("expected staged reservation to be visible, got %+v", got)
		}
		if err := tx.InsertReservation(ctx, r); !errors.Is(err, persistence.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate for staged id, got %v", err)
		}
		return tx.UpdateReservationStatus(ctx, r.ID, "cancelled", persistencetest.Base.Add(time.Minute))
	})
	if err != nil {
		t.Fatalf("WithinBookingTx returned error: %v", err)
	}

	got, err := store.GetReservation(ctx, r.ID)
	if err != nil || got.Status != "cancelled" {
		t.Fatalf("expected committed cancelled reservation, got %+v, %v", got, err)
	}
}
