package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager applies pending migrations in version order.
type Manager struct {
	scanner  *Scanner
	executor Executor
	logger   *slog.Logger
}

// NewManager wires a scanner and executor. A nil logger discards output.
func NewManager(scanner *Scanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration and returns how many were applied.
func (m *Manager) Run(ctx context.Context) (int, error) {
	started := time.Now()
	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		m.logger.InfoContext(ctx, "schema up to date")
		return 0, nil
	}

	for i, mig := range pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", mig.Version,
			"description", mig.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(pending)),
		)
		if err := m.executor.ExecuteMigration(ctx, mig); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", mig.Version, "error", err)
			return i, NewMigrationError(mig.Version, mig.FilePath, "execute migration",
				fmt.Errorf("%w: %v", ErrMigrationFailed, err))
		}
	}

	m.logger.InfoContext(ctx, "migrations applied", "count", len(pending), "duration", time.Since(started))
	return len(pending), nil
}

// Pending returns migrations that have not been applied yet.
func (m *Manager) Pending(ctx context.Context) ([]Migration, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Pending, nil
}

// Status compares the files against the schema_migrations table.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("initialize version table: %w", err)
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load applied migrations: %w", err)
	}
	if err := validateSequence(available, applied); err != nil {
		return Status{}, err
	}

	appliedSet := make(map[int]bool, len(applied))
	status := Status{Applied: applied}
	for _, a := range applied {
		appliedSet[a.Version] = true
		if a.Version > status.CurrentVersion {
			status.CurrentVersion = a.Version
		}
	}
	for _, mig := range available {
		if !appliedSet[mig.Version] {
			status.Pending = append(status.Pending, mig)
		}
	}
	return status, nil
}

// validateSequence rejects gaps in the file versions, applied versions that
// have no file, and applied files whose checksum changed.
func validateSequence(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for i, mig := range available {
		if i > 0 && mig.Version != available[i-1].Version+1 {
			return fmt.Errorf("%w: missing migration version %04d", ErrVersionConflict, available[i-1].Version+1)
		}
		byVersion[mig.Version] = mig
	}
	for _, a := range applied {
		mig, ok := byVersion[a.Version]
		if !ok {
			return fmt.Errorf("%w: applied migration %04d has no file", ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != mig.Checksum {
			return NewMigrationError(a.Version, mig.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
