package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence"
)

const resourceTypeColumns = `id, tenant_id, name, requires_agent, created_at, updated_at`

// CreateResourceType inserts a resource type.
func (s *Store) CreateResourceType(ctx context.Context, rt persistence.ResourceType) error {
	if rt.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO resource_types (`+resourceTypeColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		rt.ID, rt.TenantID, rt.Name, rt.RequiresAgent, rt.CreatedAt, rt.UpdatedAt,
	)
	return mapError(err)
}

// GetResourceType loads a resource type by id.
func (s *Store) GetResourceType(ctx context.Context, id string) (persistence.ResourceType, error) {
	return scanResourceType(s.pool.QueryRow(ctx, `SELECT `+resourceTypeColumns+` FROM resource_types WHERE id = $1`, id))
}

// ListResourceTypes lists the resource types of a tenant by name.
func (s *Store) ListResourceTypes(ctx context.Context, tenantID string) ([]persistence.ResourceType, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+resourceTypeColumns+` FROM resource_types WHERE tenant_id = $1 ORDER BY name`, tenantID)
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

func scanResourceType(row pgx.Row) (persistence.ResourceType, error) {
	var rt persistence.ResourceType
	if err := row.Scan(&rt.ID, &rt.TenantID, &rt.Name, &rt.RequiresAgent, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return persistence.ResourceType{}, mapError(err)
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
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO resources (`+resourceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, r.TenantID, r.TypeID, r.Name, r.Description, r.DurationMinutes, r.PriceCents,
			r.Active, modeOrDefault(r.AvailabilityMode), r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return mapError(err)
		}
		return replaceResourceAgents(ctx, tx, r.ID, r.AgentIDs)
	})
}

// UpdateResource replaces the mutable fields and agent links of a resource.
func (s *Store) UpdateResource(ctx context.Context, r persistence.Resource) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE resources
			SET type_id = $2, name = $3, description = $4, duration_minutes = $5, price_cents = $6,
			    active = $7, availability_mode = $8, updated_at = $9
			WHERE id = $1`,
			r.ID, r.TypeID, r.Name, r.Description, r.DurationMinutes, r.PriceCents,
			r.Active, modeOrDefault(r.AvailabilityMode), r.UpdatedAt,
		)
		if err != nil {
			return mapError(err)
		}
		if err := expectRow(tag); err != nil {
			return err
		}
		return replaceResourceAgents(ctx, tx, r.ID, r.AgentIDs)
	})
}

func replaceResourceAgents(ctx context.Context, tx pgx.Tx, resourceID string, agentIDs []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM resource_agents WHERE resource_id = $1`, resourceID); err != nil {
		return mapError(err)
	}
	if len(agentIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO resource_agents (resource_id, agent_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`, resourceID, agentIDs)
	return mapError(err)
}

// GetResource loads a resource with its agent ids.
func (s *Store) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	r, err := scanResource(s.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id))
	if err != nil {
		return persistence.Resource{}, err
	}
	links, err := s.resourceAgents(ctx, `WHERE resource_id = $1`, id)
	if err != nil {
		return persistence.Resource{}, err
	}
	r.AgentIDs = links[r.ID]
	return r, nil
}

// ListResources lists the resources of a tenant by name.
func (s *Store) ListResources(ctx context.Context, tenantID string) ([]persistence.Resource, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE tenant_id = $1 ORDER BY name, id`, tenantID)
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

	links, err := s.resourceAgents(ctx, `WHERE resource_id IN (SELECT id FROM resources WHERE tenant_id = $1)`, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].AgentIDs = links[out[i].ID]
	}
	return out, nil
}

func (s *Store) resourceAgents(ctx context.Context, filter string, args ...any) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT resource_id, agent_id FROM resource_agents `+filter+` ORDER BY agent_id`, args...)
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

func scanResource(row pgx.Row) (persistence.Resource, error) {
	var r persistence.Resource
	err := row.Scan(&r.ID, &r.TenantID, &r.TypeID, &r.Name, &r.Description, &r.DurationMinutes, &r.PriceCents,
		&r.Active, &r.AvailabilityMode, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return persistence.Resource{}, mapError(err)
	}
	return r, nil
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
	_, err := s.pool.Exec(ctx, `INSERT INTO agents (`+agentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.TenantID, a.Name, normalizeEmail(a.Email), a.Active, a.CreatedAt, a.UpdatedAt,
	)
	return mapError(err)
}

// GetAgent loads an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (persistence.Agent, error) {
	return scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
}

// ListAgents lists the agents of a tenant by name.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]persistence.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id = $1 ORDER BY name`, tenantID)
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

func scanAgent(row pgx.Row) (persistence.Agent, error) {
	var a persistence.Agent
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Email, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return persistence.Agent{}, mapError(err)
	}
	return a, nil
}
