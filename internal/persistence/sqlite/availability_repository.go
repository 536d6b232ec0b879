package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/example/booking-engine/internal/persistence"
)

// CreateScheduleEntry inserts a weekly schedule entry.
func (s *Store) CreateScheduleEntry(ctx context.Context, e persistence.ScheduleEntry) error {
	if e.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_entries (id, tenant_id, resource_id, agent_id, weekday, start_seconds, end_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, nullString(e.ResourceID), nullString(e.AgentID),
		e.Weekday, e.StartSeconds, e.EndSeconds, formatTime(e.CreatedAt),
	)
	return mapError(err)
}

const scheduleColumns = `id, tenant_id, resource_id, agent_id, weekday, start_seconds, end_seconds, created_at`

// GetScheduleEntry loads a schedule entry by id.
func (s *Store) GetScheduleEntry(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	return scanScheduleEntry(s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries WHERE id = ?`, id))
}

// DeleteScheduleEntry removes a schedule entry.
func (s *Store) DeleteScheduleEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result)
}

// ListScheduleEntries lists entries matching filter ordered by weekday.
func (s *Store) ListScheduleEntries(ctx context.Context, filter persistence.TargetFilter) ([]persistence.ScheduleEntry, error) {
	where, args := targetWhere(filter, false)
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries`+where+` ORDER BY weekday, id`, args...)
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

func scanScheduleEntry(row rowScanner) (persistence.ScheduleEntry, error) {
	var (
		e                   persistence.ScheduleEntry
		resourceID, agentID sql.NullString
		createdAt           string
	)
	err := row.Scan(&e.ID, &e.TenantID, &resourceID, &agentID, &e.Weekday, &e.StartSeconds, &e.EndSeconds, &createdAt)
	if err != nil {
		return persistence.ScheduleEntry{}, mapError(err)
	}
	e.ResourceID, e.AgentID = resourceID.String, agentID.String
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ScheduleEntry{}, err
	}
	return e, nil
}

// CreateBlockedTime inserts a blocked interval.
func (s *Store) CreateBlockedTime(ctx context.Context, b persistence.BlockedTime) error {
	if b.ID == "" || !b.Start.Before(b.End) {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_times (id, tenant_id, resource_id, agent_id, start_at, end_at, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, nullString(b.ResourceID), nullString(b.AgentID),
		formatTime(b.Start), formatTime(b.End), b.Reason, formatTime(b.CreatedAt),
	)
	return mapError(err)
}

const blockedColumns = `id, tenant_id, resource_id, agent_id, start_at, end_at, reason, created_at`

// GetBlockedTime loads a blocked interval by id.
func (s *Store) GetBlockedTime(ctx context.Context, id string) (persistence.BlockedTime, error) {
	return scanBlockedTime(s.db.QueryRowContext(ctx, `SELECT `+blockedColumns+` FROM blocked_times WHERE id = ?`, id))
}

// DeleteBlockedTime removes a blocked interval.
func (s *Store) DeleteBlockedTime(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocked_times WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result)
}

// ListBlockedTimes lists blocked intervals matching filter ordered by start.
func (s *Store) ListBlockedTimes(ctx context.Context, filter persistence.TargetFilter) ([]persistence.BlockedTime, error) {
	where, args := targetWhere(filter, true)
	rows, err := s.db.QueryContext(ctx, `SELECT `+blockedColumns+` FROM blocked_times`+where+` ORDER BY start_at, id`, args...)
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

func scanBlockedTime(row rowScanner) (persistence.BlockedTime, error) {
	var (
		b                         persistence.BlockedTime
		resourceID, agentID       sql.NullString
		startAt, endAt, createdAt string
	)
	err := row.Scan(&b.ID, &b.TenantID, &resourceID, &agentID, &startAt, &endAt, &b.Reason, &createdAt)
	if err != nil {
		return persistence.BlockedTime{}, mapError(err)
	}
	b.ResourceID, b.AgentID = resourceID.String, agentID.String
	if b.Start, err = parseTime(startAt); err != nil {
		return persistence.BlockedTime{}, err
	}
	if b.End, err = parseTime(endAt); err != nil {
		return persistence.BlockedTime{}, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.BlockedTime{}, err
	}
	return b, nil
}

// targetWhere builds the WHERE clause of a TargetFilter. Range bounds are only
// applied to tables with start_at and end_at columns.
func targetWhere(filter persistence.TargetFilter, ranged bool) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
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
	if ranged && filter.To != nil {
		clauses = append(clauses, "start_at < ?")
		args = append(args, formatTime(*filter.To))
	}
	if ranged && filter.From != nil {
		clauses = append(clauses, "end_at > ?")
		args = append(args, formatTime(*filter.From))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
