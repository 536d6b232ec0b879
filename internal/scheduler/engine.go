package scheduler

import (
	"errors"
	"time"

	"github.com/example/booking-engine/internal/recurrence"
)

// AvailabilityMode controls how a target without a schedule entry is treated.
type AvailabilityMode string

const (
	// ModeSchedule opens the target only inside its weekly schedule.
	ModeSchedule AvailabilityMode = "schedule"
	// ModeAlways opens the whole day when no schedule entry exists.
	ModeAlways AvailabilityMode = "always"
	// ModeCustom behaves like ModeSchedule.
	ModeCustom AvailabilityMode = "custom"
)

// Valid reports whether the mode is known.
func (m AvailabilityMode) Valid() bool {
	switch m {
	case ModeSchedule, ModeAlways, ModeCustom:
		return true
	}
	return false
}

// Resource is the engine's view of a bookable unit.
type Resource struct {
	ID              string
	TenantID        string
	DurationMinutes int
	Active          bool
	Mode            AvailabilityMode
	// RequiresAgent comes from the resource type.
	RequiresAgent bool
	AgentIDs      []string
}

// SlotDuration returns the configured slot length.
func (r Resource) SlotDuration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// BookingRequest is a proposed reservation.
type BookingRequest struct {
	Resource Resource
	// AgentID is empty when no agent is requested.
	AgentID string
	Interval
}

// ErrInvalidDuration indicates a slot query without a positive duration.
var ErrInvalidDuration = errors.New("scheduler: slot duration must be positive")

// ValidateReservation decides whether req may be accepted. It returns nil on
// acceptance and a *RejectError naming the first failed check otherwise.
//
// Only the active flag, temporal bounds and confirmed overlaps are checked.
// The weekly schedule and blocked intervals shape what is offered by
// ComputeFreeSlots but are not re-verified here.
func ValidateReservation(req BookingRequest, now time.Time, policy *Policy, ledger Ledger) error {
	if err := RequirePolicy(policy); err != nil {
		return err
	}
	if !req.Resource.Active {
		return reject(ReasonResourceInactive)
	}
	if !req.Interval.Valid() {
		return reject(ReasonInvalidInterval)
	}
	if req.Start.Before(now) {
		return reject(ReasonPastDate)
	}
	if !policy.WithinHorizon(recurrence.DateOf(req.Start, policy.Loc()), now) {
		return reject(ReasonTooFarInFuture)
	}
	if req.Resource.RequiresAgent && req.AgentID == "" {
		return reject(ReasonAgentRequired)
	}
	return checkOverlaps(Reservation{ResourceID: req.Resource.ID, AgentID: req.AgentID, Interval: req.Interval}, ledger)
}

// checkOverlaps rejects candidate with the reason of its first conflict.
func checkOverlaps(candidate Reservation, ledger Ledger) error {
	conflicts := DetectConflicts(ledger, candidate)
	if len(conflicts) == 0 {
		return nil
	}
	if conflicts[0].Type == ConflictTypeAgent {
		return reject(ReasonAgentUnavailable)
	}
	return reject(ReasonResourceUnavailable)
}

// NewReservation builds the reservation to persist for an accepted request.
func NewReservation(id, userID string, req BookingRequest, notes string, policy *Policy) Reservation {
	return Reservation{
		ID:         id,
		TenantID:   req.Resource.TenantID,
		UserID:     userID,
		ResourceID: req.Resource.ID,
		AgentID:    req.AgentID,
		Interval:   req.Interval,
		Status:     policy.InitialStatus(),
		Notes:      notes,
	}
}

// SlotQuery describes a free slot enumeration for one target on one date.
type SlotQuery struct {
	Target    Target
	Date      recurrence.Date
	Duration  time.Duration
	Mode      AvailabilityMode
	Now       time.Time
	Policy    *Policy
	Schedules *ScheduleIndex
	Blackouts BlackoutSet
	Ledger    Ledger
	// Also lists further targets whose blocks and confirmed reservations are
	// subtracted, such as the resource an agent would be booked on.
	Also []Target
}

// ComputeFreeSlots enumerates open slots of q.Duration for q.Target on q.Date
// in chronological order.
func ComputeFreeSlots(q SlotQuery) ([]Interval, error) {
	if err := RequirePolicy(q.Policy); err != nil {
		return nil, err
	}
	if !q.Policy.WithinHorizon(q.Date, q.Now) {
		return nil, reject(ReasonHorizonExceeded)
	}
	if q.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if !q.Target.Valid() {
		return nil, ErrInvalidTarget
	}

	window, ok := openWindow(q)
	if !ok {
		return []Interval{}, nil
	}

	targets := append([]Target{q.Target}, q.Also...)
	var busy []Interval
	for _, t := range targets {
		busy = append(busy, q.Blackouts.Overlapping(t, window)...)
		busy = append(busy, q.Ledger.Busy(t, window)...)
	}

	slots := Partition(Subtract(window, busy), q.Duration)
	if slots == nil {
		slots = []Interval{}
	}
	return slots, nil
}

func openWindow(q SlotQuery) (Interval, bool) {
	engine := recurrence.NewEngine(q.Policy.Loc())
	if occ, ok := engine.Anchor(q.Schedules.Template(q.Target), q.Date); ok {
		return Interval{Start: occ.Start, End: occ.End}, true
	}
	if q.Mode == ModeAlways {
		loc := q.Policy.Loc()
		return Interval{Start: q.Date.Midnight(loc), End: q.Date.AddDays(1).Midnight(loc)}, true
	}
	return Interval{}, false
}

// Cancel applies the cancellation cutoff and returns the cancelled reservation.
// Cancelling an already cancelled reservation returns it unchanged.
func Cancel(r Reservation, now time.Time, policy *Policy) (Reservation, error) {
	if err := RequirePolicy(policy); err != nil {
		return r, err
	}
	if r.Start.Sub(now) < policy.CancellationCutoff() {
		return r, reject(ReasonTooLateToCancel)
	}
	switch r.Status {
	case StatusCancelled:
		return r, nil
	case StatusCompleted:
		return r, reject(ReasonReservationComplete)
	}
	r.Status = StatusCancelled
	return r, nil
}

// Confirm promotes a pending reservation after re-checking overlaps against
// the ledger. Confirming a confirmed reservation returns it unchanged.
func Confirm(r Reservation, now time.Time, policy *Policy, ledger Ledger) (Reservation, error) {
	if err := RequirePolicy(policy); err != nil {
		return r, err
	}
	switch r.Status {
	case StatusConfirmed:
		return r, nil
	case StatusPending:
	default:
		return r, reject(ReasonInvalidTransition)
	}
	if r.Start.Before(now) {
		return r, reject(ReasonPastDate)
	}
	if err := checkOverlaps(r, ledger); err != nil {
		return r, err
	}
	r.Status = StatusConfirmed
	return r, nil
}

// Complete marks a confirmed reservation whose end has passed as completed.
// The second result reports whether the status changed.
func Complete(r Reservation, now time.Time) (Reservation, bool) {
	if r.Status != StatusConfirmed || r.End.After(now) {
		return r, false
	}
	r.Status = StatusCompleted
	return r, true
}
