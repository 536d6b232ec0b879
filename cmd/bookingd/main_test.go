package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence/sqlite"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
	"github.com/example/booking-engine/internal/testfixtures"
)

func runCLI(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&rootOptions{
		lookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		stdout: &out,
	})
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) (map[string]string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booking.db")
	return map[string]string{
		"BOOKING_STORAGE":    "sqlite",
		"BOOKING_SQLITE_DSN": path,
		"BOOKING_LOG_LEVEL":  "error",
	}, path
}

func TestMigrateIsIdempotent(t *testing.T) {
	env, _ := sqliteEnv(t)

	out, err := runCLI(t, env, "migrate", "--status")
	if err != nil {
		t.Fatalf("migrate --status returned error: %v", err)
	}
	if !strings.Contains(out, "current version: 0") || !strings.Contains(out, "pending: 0001") {
		t.Fatalf("expected the initial schema pending, got %q", out)
	}

	out, err = runCLI(t, env, "migrate")
	if err != nil {
		t.Fatalf("migrate returned error: %v", err)
	}
	if strings.Contains(out, "applied 0 migration") {
		t.Fatalf("expected migrations on a fresh database, got %q", out)
	}

	out, err = runCLI(t, env, "migrate")
	if err != nil {
		t.Fatalf("second migrate returned error: %v", err)
	}
	if !strings.Contains(out, "applied 0 migration(s)") {
		t.Fatalf("expected nothing to apply, got %q", out)
	}
}

func TestTenantUserAndSlotsCommands(t *testing.T) {
	env, path := sqliteEnv(t)

	out, err := runCLI(t, env, "tenant", "add", "--name", "Acme")
	if err != nil {
		t.Fatalf("tenant add returned error: %v", err)
	}
	_, rest, ok := strings.Cut(out, "(")
	tenantID, _, _ := strings.Cut(rest, ")")
	if !ok || tenantID == "" {
		t.Fatalf("expected tenant id in output, got %q", out)
	}

	out, err = runCLI(t, env, "user", "add", "--email", "owner@acme.test", "--password", "correct-horse-battery", "--tenant", tenantID, "--admin")
	if err != nil {
		t.Fatalf("user add returned error: %v", err)
	}
	if !strings.Contains(out, `created user "owner@acme.test"`) {
		t.Fatalf("unexpected user add output %q", out)
	}

	if _, err := runCLI(t, env, "user", "add", "--email", "owner@acme.test", "--password", "correct-horse-battery"); err == nil {
		t.Fatal("expected duplicate email to fail")
	}

	resource := testfixtures.NewResourceFixture(tenantID, testfixtures.WithMode(scheduler.ModeAlways))
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(path))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.CreateResourceType(ctx, resource.Type()); err != nil {
		t.Fatalf("CreateResourceType returned error: %v", err)
	}
	if err := store.CreateResource(ctx, resource.Persistence()); err != nil {
		t.Fatalf("CreateResource returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	tomorrow := recurrence.DateOf(time.Now(), time.UTC).AddDays(1)
	out, err = runCLI(t, env, "slots", "--resource", resource.ID, "--date", tomorrow.String())
	if err != nil {
		t.Fatalf("slots returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 24 {
		t.Fatalf("expected 24 hourly slots, got %d: %q", len(lines), out)
	}
	if want := tomorrow.String() + "T00:00:00Z\t" + tomorrow.String() + "T01:00:00Z"; lines[0] != want {
		t.Fatalf("expected first slot %q, got %q", want, lines[0])
	}
}

func TestServeRequiresSessionKey(t *testing.T) {
	env, _ := sqliteEnv(t)

	_, err := runCLI(t, env, "serve")
	if err == nil || !strings.Contains(err.Error(), "BOOKING_SESSION_HASH_KEY") {
		t.Fatalf("expected missing session key error, got %v", err)
	}
}

func TestKeysAndVersion(t *testing.T) {
	out, err := runCLI(t, nil, "keys")
	if err != nil {
		t.Fatalf("keys returned error: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		_, value, ok := strings.Cut(line, "=")
		if !ok {
			t.Fatalf("unexpected keys line %q", line)
		}
		key, err := base64.StdEncoding.DecodeString(value)
		if err != nil || len(key) != 32 {
			t.Fatalf("expected a 32 byte base64 key, got %q", value)
		}
	}

	out, err = runCLI(t, nil, "version")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.HasPrefix(out, "bookingd dev") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRunServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	wait := func(t *testing.T, errc <-chan error) error {
		t.Helper()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("runServer did not return")
			return nil
		}
	}

	t.Run("returns the listen error when the port is taken", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer ln.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		server := &http.Server{Addr: ln.Addr().String(), Handler: http.NotFoundHandler()}
		errc := make(chan error, 1)
		go func() { errc <- runServer(ctx, server, logger) }()

		if err := wait(t, errc); err == nil {
			t.Fatal("expected an address in use error")
		}
	})

	t.Run("shuts down when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
		errc := make(chan error, 1)
		go func() { errc <- runServer(ctx, server, logger) }()

		cancel()
		if err := wait(t, errc); err != nil {
			t.Fatalf("expected a clean shutdown, got %v", err)
		}
	})
}
