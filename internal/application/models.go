package application

import (
	"time"

	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
//
// Staff are admins without a tenant and may act on any tenant. Tenant admins
// are admins attached to a tenant. Everyone else is a customer.
type Principal struct {
	UserID   string
	TenantID string
	IsAdmin  bool
}

// IsStaff reports whether the principal is a platform administrator.
func (p Principal) IsStaff() bool {
	return p.IsAdmin && p.TenantID == ""
}

// CanManage reports whether the principal may administer tenantID.
func (p Principal) CanManage(tenantID string) bool {
	if p.IsStaff() {
		return true
	}
	return p.IsAdmin && tenantID != "" && p.TenantID == tenantID
}

// CreateBookingParams wraps the data required to request a reservation.
type CreateBookingParams struct {
	Principal  Principal
	ResourceID string
	AgentID    string
	Start      time.Time
	End        time.Time
	Notes      string
}

// ListBookingsParams filters a booking listing. Results are additionally
// scoped by the principal's role.
type ListBookingsParams struct {
	Principal  Principal
	ResourceID string
	Statuses   []scheduler.ReservationStatus
	From       *time.Time
	To         *time.Time
}

// DaySlots lists the free slots of one calendar date.
type DaySlots struct {
	Date  recurrence.Date
	Slots []scheduler.Interval
}

// ResourceTypeInput captures caller provided resource type fields.
type ResourceTypeInput struct {
	TenantID      string
	Name          string
	RequiresAgent *bool
}

// ResourceInput captures caller provided resource fields. Nil pointers leave
// the stored value untouched on update.
type ResourceInput struct {
	TenantID         string
	TypeID           *string
	Name             *string
	Description      *string
	DurationMinutes  *int
	PriceCents       *int64
	Active           *bool
	AvailabilityMode *string
	AgentIDs         *[]string
}

// AgentInput captures caller provided agent fields.
type AgentInput struct {
	TenantID string
	Name     string
	Email    string
	Active   *bool
}

// ScheduleEntryInput opens a resource or an agent for one weekday.
type ScheduleEntryInput struct {
	TenantID   string
	ResourceID string
	AgentID    string
	Weekday    recurrence.Weekday
	Start      recurrence.TimeOfDay
	End        recurrence.TimeOfDay
}

// BlockedTimeInput closes a resource or an agent for an explicit period.
type BlockedTimeInput struct {
	TenantID   string
	ResourceID string
	AgentID    string
	Start      time.Time
	End        time.Time
	Reason     string
}

// PolicyInput captures the editable booking settings of a tenant.
type PolicyInput struct {
	TenantID                string
	AdvanceBookingLimitDays int
	CancellationLimitHours  int
	AutomaticConfirmation   bool
	NotificationEmail       string
}

// RegisterUserParams captures the data required to create an account.
type RegisterUserParams struct {
	Email       string
	Password    string
	DisplayName string
	TenantID    string
	IsAdmin     bool
}

// Session is an issued, stateless session token.
type Session struct {
	Token     string
	Principal Principal
	ExpiresAt time.Time
}
