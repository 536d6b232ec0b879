package scheduler

import (
	"errors"
	"fmt"
)

// Reason identifies why the engine refused an operation. The string value is
// user facing and is surfaced verbatim by the HTTP layer.
type Reason string

const (
	ReasonResourceInactive    Reason = "resource inactive"
	ReasonInvalidInterval     Reason = "invalid interval"
	ReasonPastDate            Reason = "past date"
	ReasonTooFarInFuture      Reason = "too far in future"
	ReasonAgentRequired       Reason = "agent required"
	ReasonResourceUnavailable Reason = "resource unavailable"
	ReasonAgentUnavailable    Reason = "agent unavailable"
	ReasonTooLateToCancel     Reason = "too late to cancel"
	ReasonReservationComplete Reason = "reservation completed"
	ReasonInvalidTransition   Reason = "invalid status transition"
	ReasonHorizonExceeded     Reason = "horizon exceeded"
	ReasonBookingNotEnabled   Reason = "booking not enabled"
)

// Class groups reasons by how callers should react to them.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassConflict      Class = "conflict"
	ClassPolicyMissing Class = "policy_missing"
	ClassHorizon       Class = "horizon"
)

// Class reports the reason's error class.
func (r Reason) Class() Class {
	switch r {
	case ReasonResourceUnavailable, ReasonAgentUnavailable:
		return ClassConflict
	case ReasonBookingNotEnabled:
		return ClassPolicyMissing
	case ReasonHorizonExceeded:
		return ClassHorizon
	default:
		return ClassValidation
	}
}

// RejectError is returned whenever a booking decision is negative.
type RejectError struct {
	Reason Reason
}

func (e *RejectError) Error() string {
	if e == nil {
		return "scheduler: rejected"
	}
	return fmt.Sprintf("scheduler: %s", e.Reason)
}

func reject(reason Reason) error {
	return &RejectError{Reason: reason}
}

// ReasonOf extracts the reject reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rejectErr *RejectError
	if errors.As(err, &rejectErr) && rejectErr != nil {
		return rejectErr.Reason, true
	}
	return "", false
}

// IsReason reports whether err is a rejection with the given reason.
func IsReason(err error, reason Reason) bool {
	got, ok := ReasonOf(err)
	return ok && got == reason
}
