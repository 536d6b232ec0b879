package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence"
)

const reservationColumns = `id, tenant_id, user_id, resource_id, agent_id, start_at, end_at, status, notes, created_at, updated_at`

// GetReservation loads a reservation by id.
func (s *Store) GetReservation(ctx context.Context, id string) (persistence.Reservation, error) {
	return scanReservation(s.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
}

// ListReservations lists reservations matching filter ordered by start.
func (s *Store) ListReservations(ctx context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	var (
		clauses []string
		params  args
	)
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = "+params.add(filter.TenantID))
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = "+params.add(filter.UserID))
	}
	if c := targetClause(filter.ResourceIDs, filter.AgentIDs, &params); c != "" {
		clauses = append(clauses, c)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status = ANY("+params.add(filter.Statuses)+")")
	}
	if filter.To != nil {
		clauses = append(clauses, "start_at < "+params.add(*filter.To))
	}
	if filter.From != nil {
		clauses = append(clauses, "end_at > "+params.add(*filter.From))
	}
	if filter.EndsBefore != nil {
		clauses = append(clauses, "end_at <= "+params.add(*filter.EndsBefore))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations` + where(clauses) + ` ORDER BY start_at, id`
	return queryReservations(ctx, s.pool, query, params...)
}

func queryReservations(ctx context.Context, q querier, query string, params ...any) ([]persistence.Reservation, error) {
	rows, err := q.Query(ctx, query, params...)
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

func scanReservation(row pgx.Row) (persistence.Reservation, error) {
	var (
		r       persistence.Reservation
		agentID *string
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.UserID, &r.ResourceID, &agentID, &r.Start, &r.End,
		&r.Status, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return persistence.Reservation{}, mapError(err)
	}
	r.AgentID = deref(agentID)
	return r, nil
}

// lockTargets takes row locks on the resource and then the agent. The fixed
// order keeps concurrent bookings from deadlocking on each other.
func lockTargets(ctx context.Context, tx pgx.Tx, resourceID, agentID string) error {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM resources WHERE id = $1 FOR UPDATE`, resourceID); err != nil {
		return mapError(err)
	}
	if agentID == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM agents WHERE id = $1 FOR UPDATE`, agentID); err != nil {
		return mapError(err)
	}
	return nil
}

// WithinBookingTx runs fn while holding the resource and agent row locks.
func (s *Store) WithinBookingTx(ctx context.Context, resourceID, agentID string, fn func(tx persistence.BookingTx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockTargets(ctx, tx, resourceID, agentID); err != nil {
			return err
		}
		return fn(&bookingTx{tx: tx})
	})
}

// WithinReservationTx locks the targets of a reservation and then the
// reservation row itself before handing it to fn.
func (s *Store) WithinReservationTx(ctx context.Context, reservationID string, fn func(tx persistence.BookingTx, reservation persistence.Reservation) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanReservation(tx.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, reservationID))
		if err != nil {
			return err
		}
		if err := lockTargets(ctx, tx, current.ResourceID, current.AgentID); err != nil {
			return err
		}
		current, err = scanReservation(tx.QueryRow(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, reservationID))
		if err != nil {
			return err
		}
		return fn(&bookingTx{tx: tx}, current)
	})
}

type bookingTx struct {
	tx pgx.Tx
}

func (b *bookingTx) ConfirmedOverlapping(ctx context.Context, resourceID, agentID string, start, end time.Time) ([]persistence.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'confirmed' AND start_at < $1 AND end_at > $2`
	params := []any{end, start, resourceID}
	if agentID != "" {
		query += ` AND (resource_id = $3 OR agent_id = $4)`
		params = append(params, agentID)
	} else {
		query += ` AND resource_id = $3`
	}
	query += ` ORDER BY start_at, id`
	return queryReservations(ctx, b.tx, query, params...)
}

func (b *bookingTx) InsertReservation(ctx context.Context, r persistence.Reservation) error {
	if r.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := b.tx.Exec(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.TenantID, r.UserID, r.ResourceID, nullable(r.AgentID),
		r.Start, r.End, r.Status, r.Notes, r.CreatedAt, r.UpdatedAt,
	)
	return mapError(err)
}

func (b *bookingTx) UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	tag, err := b.tx.Exec(ctx, `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`, id, status, updatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectRow(tag)
}
