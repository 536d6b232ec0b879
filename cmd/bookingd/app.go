package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/config"
	"github.com/example/booking-engine/internal/logging"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/memory"
	"github.com/example/booking-engine/internal/persistence/migration"
	"github.com/example/booking-engine/internal/persistence/postgres"
	"github.com/example/booking-engine/internal/persistence/sqlite"
)

// policyCacheTTL bounds how long a settings change takes to reach slot previews.
const policyCacheTTL = time.Minute

// runtime is a loaded configuration with its logger and open store.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	store  persistence.Store
}

type migrator interface {
	Migrate(ctx context.Context, logger *slog.Logger) (int, error)
}

type statusReporter interface {
	MigrationStatus(ctx context.Context) (migration.Status, error)
}

func (o *rootOptions) loadConfig(skipRequired bool) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithOptions(config.Options{
		File:         o.configFile,
		EnvFile:      o.envFile,
		LookupEnv:    o.lookupEnv,
		SkipRequired: skipRequired,
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// open loads settings and connects to the configured store. With migrate set,
// pending schema migrations are applied first.
func (o *rootOptions) open(ctx context.Context, skipRequired, migrate bool) (*runtime, error) {
	cfg, logger, err := o.loadConfig(skipRequired)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, store: store}
	if migrate {
		if _, err := rt.migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return rt, nil
}

func openStore(ctx context.Context, cfg config.Config) (persistence.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StoragePostgres:
		return postgres.Open(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
	case config.StorageSQLite:
		return sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN))
	default:
		return nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

func (rt *runtime) migrate(ctx context.Context) (int, error) {
	m, ok := rt.store.(migrator)
	if !ok {
		rt.logger.InfoContext(ctx, "storage has no schema, skipping migrations", "storage", rt.cfg.Storage)
		return 0, nil
	}
	applied, err := m.Migrate(ctx, rt.logger)
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	return applied, nil
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("failed to close storage", "error", err)
	}
}

// services bundles the application layer of one process.
type services struct {
	policies     *application.PolicySource
	booking      *application.BookingService
	availability *application.AvailabilityService
	catalog      *application.CatalogService
	auth         *application.AuthService
}

func (rt *runtime) services() (services, error) {
	now := time.Now
	ids := uuid.NewString
	opts := application.ServiceOptions{
		Logger: rt.logger,
		Retry: persistence.RetryConfig{
			Attempts:      rt.cfg.TxRetries,
			InitialDelay:  10 * time.Millisecond,
			MaxDelay:      250 * time.Millisecond,
			BackoffFactor: 2,
		},
	}

	hashKey := rt.cfg.SessionHashKey
	if len(hashKey) == 0 {
		// Commands that never issue sessions still need a codec.
		hashKey = securecookie.GenerateRandomKey(32)
	}
	auth, err := application.NewAuthService(rt.store, ids, now, application.AuthOptions{
		HashKey:    hashKey,
		BlockKey:   rt.cfg.SessionBlockKey,
		SessionTTL: rt.cfg.SessionTTL,
		Logger:     rt.logger,
	})
	if err != nil {
		return services{}, err
	}

	policies := application.NewPolicySource(rt.store, rt.cfg.Location, policyCacheTTL, now)
	return services{
		policies:     policies,
		booking:      application.NewBookingService(rt.store, policies, ids, now, opts),
		availability: application.NewAvailabilityService(rt.store, policies, now, opts),
		catalog:      application.NewCatalogService(rt.store, policies, ids, now, opts),
		auth:         auth,
	}, nil
}

// operator is the principal CLI commands act as.
var operator = application.Principal{UserID: "bookingd-cli", IsAdmin: true}
