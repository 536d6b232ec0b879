package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
	"github.com/example/booking-engine/internal/persistence/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "booking.db")))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return openStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	applied, err := store.Migrate(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no pending migrations, got %d", applied)
	}
}

func TestOpenInMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()

	if _, err := store.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	tenants, err := store.ListTenants(ctx)
	if err != nil || len(tenants) != 0 {
		t.Fatalf("expected empty tenant list, got %+v, %v", tenants, err)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := sqlite.Open(context.Background(), sqlite.Config{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
