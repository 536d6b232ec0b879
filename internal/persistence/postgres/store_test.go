package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
	"github.com/example/booking-engine/internal/persistence/postgres"
)

// openStore migrates a throwaway schema on the database named by
// BOOKING_TEST_DATABASE_URL.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()

	url := os.Getenv("BOOKING_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOOKING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	schema := "booking_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := pgx.Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close(context.Background())
	})

	cfg := postgres.DefaultConfig(url)
	cfg.Schema = schema
	store, err := postgres.Open(ctx, cfg)
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
	persistencetest.Run(t, func(t *testing.T) persistence.Store {
		return openStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openStore(t)

	applied, err := store.Migrate(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no pending migrations, got %d", applied)
	}
}

func TestOpenRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := postgres.Open(context.Background(), postgres.Config{URL: "postgres://%zz"}); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}
