package persistence

import (
	"context"
	"time"
)

// TenantRepository stores tenants.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tenant Tenant) error
	GetTenant(ctx context.Context, id string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// PolicyRepository stores one booking policy per tenant.
type PolicyRepository interface {
	// GetPolicy returns ErrNotFound when the tenant has no policy.
	GetPolicy(ctx context.Context, tenantID string) (BookingPolicy, error)
	UpsertPolicy(ctx context.Context, policy BookingPolicy) error
}

// CatalogRepository stores resource types, resources and agents.
type CatalogRepository interface {
	CreateResourceType(ctx context.Context, rt ResourceType) error
	GetResourceType(ctx context.Context, id string) (ResourceType, error)
	ListResourceTypes(ctx context.Context, tenantID string) ([]ResourceType, error)

	CreateResource(ctx context.Context, resource Resource) error
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context, tenantID string) ([]Resource, error)

	CreateAgent(ctx context.Context, agent Agent) error
	GetAgent(ctx context.Context, id string) (Agent, error)
	ListAgents(ctx context.Context, tenantID string) ([]Agent, error)
}

// TargetFilter selects rows attached to any of the listed resources or agents.
type TargetFilter struct {
	TenantID    string
	ResourceIDs []string
	AgentIDs    []string
	// From and To restrict time ranged rows to those overlapping [From, To).
	From *time.Time
	To   *time.Time
}

// AvailabilityRepository stores schedule entries and blocked times.
type AvailabilityRepository interface {
	CreateScheduleEntry(ctx context.Context, entry ScheduleEntry) error
	GetScheduleEntry(ctx context.Context, id string) (ScheduleEntry, error)
	DeleteScheduleEntry(ctx context.Context, id string) error
	ListScheduleEntries(ctx context.Context, filter TargetFilter) ([]ScheduleEntry, error)

	CreateBlockedTime(ctx context.Context, blocked BlockedTime) error
	GetBlockedTime(ctx context.Context, id string) (BlockedTime, error)
	DeleteBlockedTime(ctx context.Context, id string) error
	ListBlockedTimes(ctx context.Context, filter TargetFilter) ([]BlockedTime, error)
}

// ReservationFilter narrows reservation queries.
type ReservationFilter struct {
	TenantID    string
	UserID      string
	ResourceIDs []string
	AgentIDs    []string
	Statuses    []string
	// From and To select reservations overlapping [From, To).
	From *time.Time
	To   *time.Time
	// EndsBefore selects reservations whose end is at or before the instant.
	EndsBefore *time.Time
}

// ReservationRepository reads reservations outside of booking transactions.
type ReservationRepository interface {
	GetReservation(ctx context.Context, id string) (Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
}

// BookingTx is the view of the reservation ledger inside a locked transaction.
type BookingTx interface {
	// ConfirmedOverlapping lists confirmed reservations on resourceID or, when
	// agentID is not empty, on agentID that overlap [start, end).
	ConfirmedOverlapping(ctx context.Context, resourceID, agentID string, start, end time.Time) ([]Reservation, error)
	InsertReservation(ctx context.Context, reservation Reservation) error
	UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time) error
}

// BookingStore serializes validate-and-commit per resource and per agent.
type BookingStore interface {
	// WithinBookingTx runs fn while holding the write locks of resourceID and,
	// when set, agentID. The transaction commits when fn returns nil.
	WithinBookingTx(ctx context.Context, resourceID, agentID string, fn func(tx BookingTx) error) error
	// WithinReservationTx locks the reservation together with its resource and
	// agent, then runs fn with the locked row.
	WithinReservationTx(ctx context.Context, reservationID string, fn func(tx BookingTx, reservation Reservation) error) error
}

// Store is the full persistence surface used by the application layer.
type Store interface {
	TenantRepository
	UserRepository
	PolicyRepository
	CatalogRepository
	AvailabilityRepository
	ReservationRepository
	BookingStore
	Ping(ctx context.Context) error
	Close() error
}
