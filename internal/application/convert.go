package application

import (
	"errors"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

// engineResource combines a stored resource with its type.
func engineResource(r persistence.Resource, rt persistence.ResourceType) scheduler.Resource {
	mode := scheduler.AvailabilityMode(r.AvailabilityMode)
	if !mode.Valid() {
		mode = scheduler.ModeSchedule
	}
	return scheduler.Resource{
		ID:              r.ID,
		TenantID:        r.TenantID,
		DurationMinutes: r.DurationMinutes,
		Active:          r.Active,
		Mode:            mode,
		RequiresAgent:   rt.RequiresAgent,
		AgentIDs:        append([]string(nil), r.AgentIDs...),
	}
}

// enginePolicy converts a stored policy. loc decides calendar dates.
func enginePolicy(p persistence.BookingPolicy, loc *time.Location) *scheduler.Policy {
	return &scheduler.Policy{
		TenantID:                p.TenantID,
		AdvanceBookingLimitDays: p.AdvanceBookingLimitDays,
		CancellationLimitHours:  p.CancellationLimitHours,
		AutomaticConfirmation:   p.AutomaticConfirmation,
		NotificationEmail:       p.NotificationEmail,
		Location:                loc,
	}
}

func engineReservation(r persistence.Reservation) scheduler.Reservation {
	return scheduler.Reservation{
		ID:         r.ID,
		TenantID:   r.TenantID,
		UserID:     r.UserID,
		ResourceID: r.ResourceID,
		AgentID:    r.AgentID,
		Interval:   scheduler.Interval{Start: r.Start, End: r.End},
		Status:     scheduler.ReservationStatus(r.Status),
		Notes:      r.Notes,
	}
}

func engineLedger(rows []persistence.Reservation) scheduler.Ledger {
	ledger := make(scheduler.Ledger, 0, len(rows))
	for _, r := range rows {
		ledger = append(ledger, engineReservation(r))
	}
	return ledger
}

func storedReservation(r scheduler.Reservation, createdAt, updatedAt time.Time) persistence.Reservation {
	return persistence.Reservation{
		ID:         r.ID,
		TenantID:   r.TenantID,
		UserID:     r.UserID,
		ResourceID: r.ResourceID,
		AgentID:    r.AgentID,
		Start:      r.Start,
		End:        r.End,
		Status:     string(r.Status),
		Notes:      r.Notes,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

func engineScheduleEntries(rows []persistence.ScheduleEntry) ([]scheduler.ScheduleEntry, error) {
	out := make([]scheduler.ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		target, err := scheduler.TargetFromRefs(row.ResourceID, row.AgentID)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.ScheduleEntry{
			ID:      row.ID,
			Target:  target,
			Weekday: recurrence.Weekday(row.Weekday),
			Start:   recurrence.TimeOfDay(row.StartSeconds),
			End:     recurrence.TimeOfDay(row.EndSeconds),
		})
	}
	return out, nil
}

func engineBlackouts(rows []persistence.BlockedTime) (scheduler.BlackoutSet, error) {
	out := make(scheduler.BlackoutSet, 0, len(rows))
	for _, row := range rows {
		target, err := scheduler.TargetFromRefs(row.ResourceID, row.AgentID)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.BlockedInterval{
			ID:       row.ID,
			Target:   target,
			Interval: scheduler.Interval{Start: row.Start, End: row.End},
			Reason:   row.Reason,
		})
	}
	return out, nil
}

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("reference", "referenced record does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("record", "violates a storage constraint")
	}
	return err
}
