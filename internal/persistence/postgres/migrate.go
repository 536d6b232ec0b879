package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *Store) migrations(logger *slog.Logger) *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		&executor{store: s},
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

// executor implements migration.Executor with $n placeholders.
type executor struct {
	store *Store
}

func (e *executor) InitializeVersionTable(ctx context.Context) error {
	_, err := e.store.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (e *executor) ExecuteMigration(ctx context.Context, m migration.Migration) error {
	started := time.Now()
	return pgx.BeginFunc(ctx, e.store.pool, func(tx pgx.Tx) error {
		for i, stmt := range migration.SplitStatements(m.SQL) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES ($1, $2, $3, $4)`,
			m.Version, time.Now().UTC(), m.Checksum, time.Since(started).Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		return nil
	})
}

func (e *executor) AppliedMigrations(ctx context.Context) ([]migration.AppliedMigration, error) {
	rows, err := e.store.pool.Query(ctx,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []migration.AppliedMigration
	for rows.Next() {
		var (
			a         migration.AppliedMigration
			elapsedMS int64
		)
		if err := rows.Scan(&a.Version, &a.AppliedAt, &a.Checksum, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		a.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
