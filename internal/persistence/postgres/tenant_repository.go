package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/booking-engine/internal/persistence"
)

// CreateTenant inserts a tenant.
func (s *Store) CreateTenant(ctx context.Context, tenant persistence.Tenant) error {
	if tenant.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.CreatedAt, tenant.UpdatedAt,
	)
	return mapError(err)
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (persistence.Tenant, error) {
	var t persistence.Tenant
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return persistence.Tenant{}, mapError(err)
	}
	return t, nil
}

// ListTenants returns all tenants ordered by id.
func (s *Store) ListTenants(ctx context.Context) ([]persistence.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at, updated_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Tenant, 0)
	for rows.Next() {
		var t persistence.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

const userColumns = `id, tenant_id, email, display_name, password_hash, is_admin, created_at, updated_at`

// CreateUser inserts a user with a normalized email.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, nullable(user.TenantID), normalizeEmail(user.Email), user.DisplayName,
		user.PasswordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt,
	)
	return mapError(err)
}

// UpdateUser replaces a user's mutable fields.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET tenant_id = $2, email = $3, display_name = $4, password_hash = $5, is_admin = $6, updated_at = $7
		WHERE id = $1`,
		user.ID, nullable(user.TenantID), normalizeEmail(user.Email), user.DisplayName,
		user.PasswordHash, user.IsAdmin, user.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	return expectRow(tag)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail loads a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalizeEmail(email)))
}

func scanUser(row pgx.Row) (persistence.User, error) {
	var (
		u        persistence.User
		tenantID *string
	)
	if err := row.Scan(&u.ID, &tenantID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	u.TenantID = deref(tenantID)
	return u, nil
}

// GetPolicy loads the booking policy of a tenant.
func (s *Store) GetPolicy(ctx context.Context, tenantID string) (persistence.BookingPolicy, error) {
	var p persistence.BookingPolicy
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, advance_booking_limit_days, cancellation_limit_hours,
		       automatic_confirmation, notification_email, created_at, updated_at
		FROM booking_policies WHERE tenant_id = $1`, tenantID,
	).Scan(&p.TenantID, &p.AdvanceBookingLimitDays, &p.CancellationLimitHours,
		&p.AutomaticConfirmation, &p.NotificationEmail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return persistence.BookingPolicy{}, mapError(err)
	}
	return p, nil
}

// UpsertPolicy creates or replaces the policy of a tenant.
func (s *Store) UpsertPolicy(ctx context.Context, p persistence.BookingPolicy) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO booking_policies (tenant_id, advance_booking_limit_days, cancellation_limit_hours,
		                              automatic_confirmation, notification_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			advance_booking_limit_days = EXCLUDED.advance_booking_limit_days,
			cancellation_limit_hours = EXCLUDED.cancellation_limit_hours,
			automatic_confirmation = EXCLUDED.automatic_confirmation,
			notification_email = EXCLUDED.notification_email,
			updated_at = EXCLUDED.updated_at`,
		p.TenantID, p.AdvanceBookingLimitDays, p.CancellationLimitHours,
		p.AutomaticConfirmation, p.NotificationEmail, createdAt, p.UpdatedAt,
	)
	return mapError(err)
}
