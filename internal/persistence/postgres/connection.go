// Package postgres implements persistence.Store on PostgreSQL through pgx.
//
// Booking transactions lock the resource row and then the agent row with
// SELECT ... FOR UPDATE, so validate-and-commit sequences touching the same
// target run one after another while unrelated bookings proceed in parallel.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/booking-engine/internal/persistence"
)

// Config holds pool settings.
type Config struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// Schema, when set, becomes the search_path of every connection.
	Schema string
	// LockTimeout bounds how long a booking waits for row locks.
	LockTimeout time.Duration
}

// DefaultConfig returns pool settings for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
		LockTimeout:     5 * time.Second,
	}
}

// Store is a persistence.Store backed by a pgx pool.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ persistence.Store = (*Store)(nil)

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.Schema != "" {
		poolCfg.ConnConfig.RuntimeParams["search_path"] = cfg.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	store := &Store{pool: pool, lockTimeout: cfg.LockTimeout}
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return store, nil
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks the connection with a short timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return mapError(s.pool.Ping(ctx))
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a read committed transaction and commits when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
			return mapError(err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapError translates pgx errors into persistence sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		case "23503":
			return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
		case "23514", "23502":
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", persistence.ErrTransient, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", persistence.ErrTransient, err)
	}
	return err
}

// nullable maps an empty string to SQL NULL.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func expectRow(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// args accumulates positional parameters and hands out $n placeholders.
type args []any

func (a *args) add(value any) string {
	*a = append(*a, value)
	return fmt.Sprintf("$%d", len(*a))
}

// targetClause builds "(resource_id = ANY($n) OR agent_id = ANY($m))".
func targetClause(resourceIDs, agentIDs []string, a *args) string {
	var targets []string
	if len(resourceIDs) > 0 {
		targets = append(targets, "resource_id = ANY("+a.add(resourceIDs)+")")
	}
	if len(agentIDs) > 0 {
		targets = append(targets, "agent_id = ANY("+a.add(agentIDs)+")")
	}
	if len(targets) == 0 {
		return ""
	}
	return "(" + strings.Join(targets, " OR ") + ")"
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
