package sqlite

import (
	"context"
	"embed"
	"log/slog"

	"github.com/example/booking-engine/internal/persistence/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *Store) migrations(logger *slog.Logger) *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLExecutor(s.db),
		logger,
	)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) (int, error) {
	return s.migrations(logger).Run(ctx)
}

// MigrationStatus reports applied and pending schema migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return s.migrations(nil).Status(ctx)
}
