package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence"
)

const scheduleColumns = `id, tenant_id, resource_id, agent_id, weekday, start_seconds, end_seconds, created_at`

// CreateScheduleEntry inserts a weekly schedule entry.
func (s *Store) CreateScheduleEntry(ctx context.Context, e persistence.ScheduleEntry) error {
	if e.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO schedule_entries (`+scheduleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TenantID, nullable(e.ResourceID), nullable(e.AgentID),
		e.Weekday, e.StartSeconds, e.EndSeconds, e.CreatedAt,
	)
	return mapError(err)
}

// GetScheduleEntry loads a schedule entry by id.
func (s *Store) GetScheduleEntry(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	return scanScheduleEntry(s.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries WHERE id = $1`, id))
}

// DeleteScheduleEntry removes a schedule entry.
func (s *Store) DeleteScheduleEntry(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(tag)
}

// ListScheduleEntries lists entries matching filter ordered by weekday.
func (s *Store) ListScheduleEntries(ctx context.Context, filter persistence.TargetFilter) ([]persistence.ScheduleEntry, error) {
	clause, params := targetWhere(filter, false)
	rows, err := s.pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries`+clause+` ORDER BY weekday, id`, params...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.ScheduleEntry, 0)
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, mapError(rows.Err())
}

func scanScheduleEntry(row pgx.Row) (persistence.ScheduleEntry, error) {
	var (
		e                   persistence.ScheduleEntry
		resourceID, agentID *string
	)
	err := row.Scan(&e.ID, &e.TenantID, &resourceID, &agentID, &e.Weekday, &e.StartSeconds, &e.EndSeconds, &e.CreatedAt)
	if err != nil {
		return persistence.ScheduleEntry{}, mapError(err)
	}
	e.ResourceID, e.AgentID = deref(resourceID), deref(agentID)
	return e, nil
}

const blockedColumns = `id, tenant_id, resource_id, agent_id, start_at, end_at, reason, created_at`

// CreateBlockedTime inserts a blocked interval.
func (s *Store) CreateBlockedTime(ctx context.Context, b persistence.BlockedTime) error {
	if b.ID == "" || !b.Start.Before(b.End) {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO blocked_times (`+blockedColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.TenantID, nullable(b.ResourceID), nullable(b.AgentID), b.Start, b.End, b.Reason, b.CreatedAt,
	)
	return mapError(err)
}

// GetBlockedTime loads a blocked interval by id.
func (s *Store) GetBlockedTime(ctx context.Context, id string) (persistence.BlockedTime, error) {
	return scanBlockedTime(s.pool.QueryRow(ctx, `SELECT `+blockedColumns+` FROM blocked_times WHERE id = $1`, id))
}

// DeleteBlockedTime removes a blocked interval.
func (s *Store) DeleteBlockedTime(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM blocked_times WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(tag)
}

// ListBlockedTimes lists blocked intervals matching filter ordered by start.
func (s *Store) ListBlockedTimes(ctx context.Context, filter persistence.TargetFilter) ([]persistence.BlockedTime, error) {
	clause, params := targetWhere(filter, true)
	rows, err := s.pool.Query(ctx, `SELECT `+blockedColumns+` FROM blocked_times`+clause+` ORDER BY start_at, id`, params...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.BlockedTime, 0)
	for rows.Next() {
		b, err := scanBlockedTime(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func scanBlockedTime(row pgx.Row) (persistence.BlockedTime, error) {
	var (
		b                   persistence.BlockedTime
		resourceID, agentID *string
	)
	err := row.Scan(&b.ID, &b.TenantID, &resourceID, &agentID, &b.Start, &b.End, &b.Reason, &b.CreatedAt)
	if err != nil {
		return persistence.BlockedTime{}, mapError(err)
	}
	b.ResourceID, b.AgentID = deref(resourceID), deref(agentID)
	return b, nil
}

// targetWhere builds the WHERE clause of a TargetFilter. Range bounds are only
// applied to tables with start_at and end_at columns.
func targetWhere(filter persistence.TargetFilter, ranged bool) (string, []any) {
	var (
		clauses []string
		params  args
	)
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = "+params.add(filter.TenantID))
	}
	if c := targetClause(filter.ResourceIDs, filter.AgentIDs, &params); c != "" {
		clauses = append(clauses, c)
	}
	if ranged && filter.To != nil {
		clauses = append(clauses, "start_at < "+params.add(*filter.To))
	}
	if ranged && filter.From != nil {
		clauses = append(clauses, "end_at > "+params.add(*filter.From))
	}
	return where(clauses), params
}
