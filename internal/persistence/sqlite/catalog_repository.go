package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/booking-engine/internal/persistence"
)

// CreateResourceType inserts a resource type.
func (s *Store) CreateResourceType(ctx context.Context, rt persistence.ResourceType) error {
	if rt.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_types (id, tenant_id, name, requires_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.TenantID, rt.Name, rt.RequiresAgent, formatTime(rt.CreatedAt), formatTime(rt.UpdatedAt),
	)
	return mapError(err)
}

const resourceTypeColumns = `id, tenant_id, name, requires_agent, created_at, updated_at`

// GetResourceType loads a resource type by id.
func (s *Store) GetResourceType(ctx context.Context, id string) (persistence.ResourceType, error) {
	return scanResourceType(s.db.QueryRowContext(ctx, `SELECT `+resourceTypeColumns+` FROM resource_types WHERE id = ?`, id))
}

// ListResourceTypes lists the resource types of a tenant by name.
func (s *Store) ListResourceTypes(ctx context.Context, tenantID string) ([]persistence.ResourceType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceTypeColumns+` FROM resource_types WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.ResourceType, 0)
	for rows.Next() {
		rt, err := scanResourceType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, mapError(rows.Err())
}

func scanResourceType(row rowScanner) (persistence.ResourceType, error) {
	var (
		rt                   persistence.ResourceType
		createdAt, updatedAt string
	)
	if err := row.Scan(&rt.ID, &rt.TenantID, &rt.Name, &rt.RequiresAgent, &createdAt, &updatedAt); err != nil {
		return persistence.ResourceType{}, mapError(err)
	}
	var err error
	if rt.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ResourceType{}, err
	}
	if rt.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.ResourceType{}, err
	}
	return rt, nil
}

const resourceColumns = `id, tenant_id, type_id, name, description, duration_minutes, price_cents,
	active, availability_mode, created_at, updated_at`

// CreateResource inserts a resource and its agent links.
func (s *Store) CreateResource(ctx context.Context, r persistence.Resource) error {
	if r.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resources (`+resourceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.TenantID, r.TypeID, r.Name, r.Description, r.DurationMinutes, priceArg(r.PriceCents),
			r.Active, modeOrDefault(r.AvailabilityMode), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		return replaceResourceAgents(ctx, tx, r.ID, r.AgentIDs)
	})
}

// UpdateResource replaces the mutable fields and agent links of a resource.
func (s *Store) UpdateResource(ctx context.Context, r persistence.Resource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE resources
			SET type_id = ?, name = ?, description = ?, duration_minutes = ?, price_cents = ?,
			    active = ?, availability_mode = ?, updated_at = ?
			WHERE id = ?`,
			r.TypeID, r.Name, r.Description, r.DurationMinutes, priceArg(r.PriceCents),
			r.Active, modeOrDefault(r.AvailabilityMode), formatTime(r.UpdatedAt), r.ID,
		)
		if err != nil {
			return mapError(err)
		}
		if err := expectRow(result); err != nil {
			return err
		}
		return replaceResourceAgents(ctx, tx, r.ID, r.AgentIDs)
	})
}

func replaceResourceAgents(ctx context.Context, tx *sql.Tx, resourceID string, agentIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_agents WHERE resource_id = ?`, resourceID); err != nil {
		return mapError(err)
	}
	for _, agentID := range agentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO resource_agents (resource_id, agent_id) VALUES (?, ?)`, resourceID, agentID,
		); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// GetResource loads a resource with its agent ids.
func (s *Store) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	r, err := scanResource(s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if err != nil {
		return persistence.Resource{}, err
	}
	links, err := s.resourceAgents(ctx, `WHERE resource_id = ?`, id)
	if err != nil {
		return persistence.Resource{}, err
	}
	r.AgentIDs = links[r.ID]
	return r, nil
}

// ListResources lists the resources of a tenant by name.
func (s *Store) ListResources(ctx context.Context, tenantID string) ([]persistence.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE tenant_id = ? ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	links, err := s.resourceAgents(ctx,
		`WHERE resource_id IN (SELECT id FROM resources WHERE tenant_id = ?)`, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].AgentIDs = links[out[i].ID]
	}
	return out, nil
}

func (s *Store) resourceAgents(ctx context.Context, where string, args ...any) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT resource_id, agent_id FROM resource_agents `+where+` ORDER BY agent_id`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var resourceID, agentID string
		if err := rows.Scan(&resourceID, &agentID); err != nil {
			return nil, mapError(err)
		}
		links[resourceID] = append(links[resourceID], agentID)
	}
	return links, mapError(rows.Err())
}

func scanResource(row rowScanner) (persistence.Resource, error) {
	var (
		r                    persistence.Resource
		price                sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.TypeID, &r.Name, &r.Description, &r.DurationMinutes, &price,
		&r.Active, &r.AvailabilityMode, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Resource{}, mapError(err)
	}
	if price.Valid {
		v := price.Int64
		r.PriceCents = &v
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Resource{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Resource{}, err
	}
	return r, nil
}

func priceArg(price *int64) sql.NullInt64 {
	if price == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *price, Valid: true}
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return "schedule"
	}
	return mode
}

const agentColumns = `id, tenant_id, name, email, active, created_at, updated_at`

// CreateAgent inserts an agent. Emails are unique per tenant.
func (s *Store) CreateAgent(ctx context.Context, a persistence.Agent) error {
	if a.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Name, normalizeEmail(a.Email), a.Active, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return mapError(err)
}

// GetAgent loads an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (persistence.Agent, error) {
	return scanAgent(s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
}

// ListAgents lists the agents of a tenant by name.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]persistence.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id = ? ORDER BY name`, tenantID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err())
}

func scanAgent(row rowScanner) (persistence.Agent, error) {
	var (
		a                    persistence.Agent
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Email, &a.Active, &createdAt, &updatedAt); err != nil {
		return persistence.Agent{}, mapError(err)
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Agent{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Agent{}, err
	}
	return a, nil
}
