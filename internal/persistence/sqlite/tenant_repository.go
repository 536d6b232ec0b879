package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// CreateTenant inserts a tenant.
func (s *Store) CreateTenant(ctx context.Context, tenant persistence.Tenant) error {
	if tenant.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		tenant.ID, tenant.Name, formatTime(tenant.CreatedAt), formatTime(tenant.UpdatedAt),
	)
	return mapError(err)
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (persistence.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// ListTenants returns all tenants ordered by id.
func (s *Store) ListTenants(ctx context.Context) ([]persistence.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (persistence.Tenant, error) {
	var (
		t                    persistence.Tenant
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.Name, &createdAt, &updatedAt); err != nil {
		return persistence.Tenant{}, mapError(err)
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Tenant{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Tenant{}, err
	}
	return t, nil
}

const userColumns = `id, tenant_id, email, display_name, password_hash, is_admin, created_at, updated_at`

// CreateUser inserts a user with a normalized email.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.TenantID),
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return mapError(err)
}

// UpdateUser replaces a user's mutable fields.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET tenant_id = ?, email = ?, display_name = ?, password_hash = ?, is_admin = ?, updated_at = ?
		WHERE id = ?`,
		nullString(user.TenantID),
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return expectRow(result)
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail loads a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		u                    persistence.User
		tenantID             sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &tenantID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsAdmin, &createdAt, &updatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}
	u.TenantID = tenantID.String
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return u, nil
}

// GetPolicy loads the booking policy of a tenant.
func (s *Store) GetPolicy(ctx context.Context, tenantID string) (persistence.BookingPolicy, error) {
	var (
		p                    persistence.BookingPolicy
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, advance_booking_limit_days, cancellation_limit_hours,
		       automatic_confirmation, notification_email, created_at, updated_at
		FROM booking_policies WHERE tenant_id = ?`, tenantID,
	).Scan(&p.TenantID, &p.AdvanceBookingLimitDays, &p.CancellationLimitHours,
		&p.AutomaticConfirmation, &p.NotificationEmail, &createdAt, &updatedAt)
	if err != nil {
		return persistence.BookingPolicy{}, mapError(err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.BookingPolicy{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.BookingPolicy{}, err
	}
	return p, nil
}

// UpsertPolicy creates or replaces the policy of a tenant.
func (s *Store) UpsertPolicy(ctx context.Context, p persistence.BookingPolicy) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO booking_policies (tenant_id, advance_booking_limit_days, cancellation_limit_hours,
		                              automatic_confirmation, notification_email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			advance_booking_limit_days = excluded.advance_booking_limit_days,
			cancellation_limit_hours = excluded.cancellation_limit_hours,
			automatic_confirmation = excluded.automatic_confirmation,
			notification_email = excluded.notification_email,
			updated_at = excluded.updated_at`,
		p.TenantID, p.AdvanceBookingLimitDays, p.CancellationLimitHours,
		p.AutomaticConfirmation, p.NotificationEmail, formatTime(createdAt), formatTime(p.UpdatedAt),
	)
	return mapError(err)
}
