package scheduler

import (
	"time"

	"github.com/example/booking-engine/internal/recurrence"
)

const (
	DefaultAdvanceBookingLimitDays = 30
	DefaultCancellationLimitHours  = 24
)

// Policy is the per-tenant booking configuration. It is passed explicitly into
// every engine call; a nil policy means booking is not enabled for the tenant.
type Policy struct {
	TenantID                string
	AdvanceBookingLimitDays int
	CancellationLimitHours  int
	AutomaticConfirmation   bool
	NotificationEmail       string
	// Location decides calendar dates for horizon and slot calculations. Nil means UTC.
	Location *time.Location
}

// DefaultPolicy returns the onboarding defaults for a tenant.
func DefaultPolicy(tenantID string) Policy {
	return Policy{
		TenantID:                tenantID,
		AdvanceBookingLimitDays: DefaultAdvanceBookingLimitDays,
		CancellationLimitHours:  DefaultCancellationLimitHours,
	}
}

// RequirePolicy rejects with ReasonBookingNotEnabled when p is nil.
func RequirePolicy(p *Policy) error {
	if p == nil {
		return reject(ReasonBookingNotEnabled)
	}
	return nil
}

// Loc returns the policy location, defaulting to UTC.
func (p *Policy) Loc() *time.Location {
	if p == nil || p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Today returns the calendar date of now.
func (p *Policy) Today(now time.Time) recurrence.Date {
	return recurrence.DateOf(now, p.Loc())
}

// HorizonDate is the last date on which a booking may start.
func (p *Policy) HorizonDate(now time.Time) recurrence.Date {
	return p.Today(now).AddDays(p.AdvanceBookingLimitDays)
}

// WithinHorizon reports whether date is on or before the horizon date.
func (p *Policy) WithinHorizon(date recurrence.Date, now time.Time) bool {
	return !date.After(p.HorizonDate(now))
}

// InitialStatus is the status given to a freshly accepted reservation.
func (p *Policy) InitialStatus() ReservationStatus {
	if p != nil && p.AutomaticConfirmation {
		return StatusConfirmed
	}
	return StatusPending
}

// CancellationCutoff is how long before start a reservation may still be cancelled.
func (p *Policy) CancellationCutoff() time.Duration {
	return time.Duration(p.CancellationLimitHours) * time.Hour
}
