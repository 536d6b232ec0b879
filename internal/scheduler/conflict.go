package scheduler

import "sort"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Valid reports whether the status is one of the known states.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Reservation is a booked interval for a resource and optionally an agent.
type Reservation struct {
	ID         string
	TenantID   string
	UserID     string
	ResourceID string
	// AgentID is empty when no agent was requested.
	AgentID string
	Interval
	Status ReservationStatus
	Notes  string
}

// HasAgent reports whether an agent is attached.
func (r Reservation) HasAgent() bool { return r.AgentID != "" }

// Holds reports whether the reservation occupies target.
func (r Reservation) Holds(target Target) bool {
	switch target.Kind() {
	case TargetResource:
		return r.ResourceID == target.ID()
	case TargetAgent:
		return r.AgentID != "" && r.AgentID == target.ID()
	}
	return false
}

// ConflictType describes what is double-booked.
type ConflictType string

const (
	ConflictTypeResource ConflictType = "resource"
	ConflictTypeAgent    ConflictType = "agent"
)

// Conflict details an overlapping confirmed reservation.
type Conflict struct {
	WithReservationID string
	Type              ConflictType
	Target            Target
}

// Ledger is a snapshot of reservations relevant to a decision.
type Ledger []Reservation

// ConfirmedOverlapping lists confirmed reservations holding target that overlap
// window. A reservation with id excludeID is ignored.
func (l Ledger) ConfirmedOverlapping(target Target, window Interval, excludeID string) []Reservation {
	var out []Reservation
	for _, r := range l {
		if r.Status != StatusConfirmed || (excludeID != "" && r.ID == excludeID) {
			continue
		}
		if r.Holds(target) && r.Interval.Overlaps(window) {
			out = append(out, r)
		}
	}
	return out
}

// Busy returns the confirmed intervals of target overlapping window.
func (l Ledger) Busy(target Target, window Interval) []Interval {
	matches := l.ConfirmedOverlapping(target, window, "")
	out := make([]Interval, 0, len(matches))
	for _, r := range matches {
		out = append(out, r.Interval)
	}
	return out
}

// DetectConflicts reports every confirmed reservation that overlaps candidate on
// its resource or, when present, its agent. Resource conflicts come before
// agent conflicts, each ordered by start time.
func DetectConflicts(existing []Reservation, candidate Reservation) []Conflict {
	ledger := Ledger(existing)
	conflicts := collectConflicts(ledger, ResourceTarget(candidate.ResourceID), ConflictTypeResource, candidate)
	if candidate.HasAgent() {
		conflicts = append(conflicts, collectConflicts(ledger, AgentTarget(candidate.AgentID), ConflictTypeAgent, candidate)...)
	}
	return conflicts
}

func collectConflicts(ledger Ledger, target Target, kind ConflictType, candidate Reservation) []Conflict {
	matches := ledger.ConfirmedOverlapping(target, candidate.Interval, candidate.ID)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start.Before(matches[j].Start) })
	out := make([]Conflict, 0, len(matches))
	for _, r := range matches {
		out = append(out, Conflict{WithReservationID: r.ID, Type: kind, Target: target})
	}
	return out
}
