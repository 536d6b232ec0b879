package migration

import (
	"context"
	"time"
)

// Migration is a single versioned SQL file.
type Migration struct {
	Version     int
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises the migration state of a database.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}

// Executor runs migrations against a concrete database driver.
type Executor interface {
	// InitializeVersionTable creates schema_migrations if it does not exist.
	InitializeVersionTable(ctx context.Context) error
	// ExecuteMigration runs every statement of m and records it in one transaction.
	ExecuteMigration(ctx context.Context, m Migration) error
	// AppliedMigrations lists recorded migrations ordered by version.
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}
