package persistence

import "time"

// Tenant is a company that owns resources, agents and a booking policy.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is an account. Tenant admins carry a TenantID; customers leave it empty.
type User struct {
	ID           string
	TenantID     string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BookingPolicy is the per-tenant booking configuration row.
type BookingPolicy struct {
	TenantID                string
	AdvanceBookingLimitDays int
	CancellationLimitHours  int
	AutomaticConfirmation   bool
	NotificationEmail       string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// ResourceType groups resources and decides whether an agent is mandatory.
type ResourceType struct {
	ID            string
	TenantID      string
	Name          string
	RequiresAgent bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Resource is a bookable unit.
type Resource struct {
	ID               string
	TenantID         string
	TypeID           string
	Name             string
	Description      string
	DurationMinutes  int
	PriceCents       *int64
	Active           bool
	AvailabilityMode string
	AgentIDs         []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Agent is a staff member that can be attached to resources and reservations.
type Agent struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleEntry opens a resource or an agent on a weekday. Exactly one of
// ResourceID and AgentID is set. Times are seconds since midnight.
type ScheduleEntry struct {
	ID           string
	TenantID     string
	ResourceID   string
	AgentID      string
	Weekday      int
	StartSeconds int
	EndSeconds   int
	CreatedAt    time.Time
}

// BlockedTime closes a resource or an agent for an explicit period. Exactly one
// of ResourceID and AgentID is set.
type BlockedTime struct {
	ID         string
	TenantID   string
	ResourceID string
	AgentID    string
	Start      time.Time
	End        time.Time
	Reason     string
	CreatedAt  time.Time
}

// Reservation is a booking of a resource and optionally an agent.
type Reservation struct {
	ID         string
	TenantID   string
	UserID     string
	ResourceID string
	AgentID    string
	Start      time.Time
	End        time.Time
	Status     string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
