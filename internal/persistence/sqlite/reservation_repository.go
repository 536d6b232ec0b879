package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

const reservationColumns = `id, tenant_id, user_id, resource_id, agent_id, start_at, end_at, status, notes, created_at, updated_at`

// GetReservation loads a reservation by id.
func (s *Store) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	return getReservation(ctx, s.db, id)
}

func getReservation(ctx context.Context, q queryer, id string) (persistence.Reservation, error) {
	return scanReservation(q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// ListReservations lists reservations matching filter ordered by start.
func (s *Store) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	var targets []string
	if len(filter.ResourceIDs) > 0 {
		targets = append(targets, inClause("resource_id", filter.ResourceIDs, &args))
	}
	if len(filter.AgentIDs) > 0 {
		targets = append(targets, inClause("agent_id", filter.AgentIDs, &args))
	}
	if len(targets) > 0 {
		clauses = append(clauses, "("+strings.Join(targets, " OR ")+")")
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, inClause("status", filter.Statuses, &args))
	}
	if filter.To != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.From != nil {
		clauses = append(clauses, "end_at > ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.EndsBefore != nil {
		clauses = append(clauses, "end_at <= ?")
		args = append(args, formatTime(*filter.EndsBefore))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_at, id"

	return queryReservations(ctx, s.db, query, args...)
}

func queryReservations(ctx context.Context, q queryer, query string, args ...any) ([]persistence.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapError(rows.Err())
}

func scanReservation(row rowScanner) (persistence.Reservation, error) {
	var (
		r                                    persistence.Reservation
		agentID                              sql.NullString
		startAt, endAt, createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.UserID, &r.ResourceID, &agentID, &startAt, &endAt,
		&r.Status, &r.Notes, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	r.AgentID = agentID.String
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&r.Start, startAt}, {&r.End, endAt}, {&r.CreatedAt, createdAt}, {&r.UpdatedAt, updatedAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return persistence.Reservation{}, err
		}
	}
	return r, nil
}

// bookingTx implements persistence.BookingTx on an IMMEDIATE transaction.
type bookingTx struct {
	tx *sql.Tx
}

// WithinBookingTx runs fn in a write transaction. SQLite has a single writer,
// so holding the transaction serializes every booking regardless of key.
func (s *Store) WithinBookingTx(ctx context.Context, _, _ string, fn func(tx persistence.BookingTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&bookingTx{tx: tx})
	})
}

// WithinReservationTx loads the reservation inside a write transaction.
func (s *Store) WithinReservationTx(ctx context.Context, reservationID string, fn func(tx persistence.BookingTx, reservation persistence.Reservation) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		return fn(&bookingTx{tx: tx}, current)
	})
}

func (b *bookingTx) ConfirmedOverlapping(ctx context.Context, resourceID, agentID string, start, end time.Time) ([]persistence.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'confirmed' AND start_at < ? AND end_at > ?`
	args := []any{formatTime(end), formatTime(start)}
	if agentID != "" {
		query += ` AND (resource_id = ? OR agent_id = ?)`
		args = append(args, resourceID, agentID)
	} else {
		query += ` AND resource_id = ?`
		args = append(args, resourceID)
	}
	query += ` ORDER BY start_at, id`
	return queryReservations(ctx, b.tx, query, args...)
}

func (b *bookingTx) InsertReservation(ctx context.Context, r persistence.Reservation) error {
	if r.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := b.tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.UserID, r.ResourceID, nullString(r.AgentID),
		formatTime(r.Start), formatTime(r.End), r.Status, r.Notes,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	return mapError(err)
}

func (b *bookingTx) UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	result, err := b.tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, status, formatTime(updatedAt), id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result)
}
