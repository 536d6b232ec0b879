package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

// MaxRangeDays bounds a multi-day availability preview.
const MaxRangeDays = 31

// AvailabilityStore captures the read operations needed for slot enumeration.
type AvailabilityStore interface {
	persistence.CatalogRepository
	persistence.AvailabilityRepository
	persistence.ReservationRepository
}

// AvailabilityService enumerates free slots. Reads take no locks; the
// authoritative check happens again when a booking is committed.
type AvailabilityService struct {
	store    AvailabilityStore
	policies *PolicySource
	now      func() time.Time
	logger   *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(store AvailabilityStore, policies *PolicySource, now func() time.Time, opts ServiceOptions) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{store: store, policies: policies, now: now, logger: defaultLogger(opts.Logger)}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// slotPlan is everything needed to enumerate slots for one target.
type slotPlan struct {
	resource persistence.Resource
	target   scheduler.Target
	also     []scheduler.Target
	duration time.Duration
	mode     scheduler.AvailabilityMode
	policy   *scheduler.Policy
}

// ResourceSlots returns the free slots of a resource on date.
func (s *AvailabilityService) ResourceSlots(ctx context.Context, resourceID string, date recurrence.Date) (day DaySlots, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ResourceSlots", "resource_id", resourceID, "date", date.String())
	defer func() {
		logOutcome(ctx, logger, err, "failed to compute slots", "slots computed", "slot_count", len(day.Slots))
	}()

	var plan slotPlan
	plan, err = s.resourcePlan(ctx, resourceID)
	if err != nil {
		return
	}
	var days []DaySlots
	days, err = s.enumerate(ctx, plan, date, date, false)
	if err != nil {
		return
	}
	day = days[0]
	return
}

// AgentSlots returns the free slots of an agent on date for bookings of
// resourceID. The resource supplies the slot length, and its blocks and
// confirmed reservations are subtracted as well.
func (s *AvailabilityService) AgentSlots(ctx context.Context, agentID, resourceID string, date recurrence.Date) (day DaySlots, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AgentSlots", "agent_id", agentID, "resource_id", resourceID, "date", date.String())
	defer func() {
		logOutcome(ctx, logger, err, "failed to compute slots", "slots computed", "slot_count", len(day.Slots))
	}()

	if resourceID == "" {
		err = fieldError("resource", "resource is required")
		return
	}
	var agent persistence.Agent
	agent, err = s.store.GetAgent(ctx, agentID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	var plan slotPlan
	plan, err = s.resourcePlan(ctx, resourceID)
	if err != nil {
		return
	}
	if agent.TenantID != plan.resource.TenantID {
		err = fieldError("agent", "unknown agent")
		return
	}
	plan.also = []scheduler.Target{plan.target}
	plan.target = scheduler.AgentTarget(agent.ID)
	plan.mode = scheduler.ModeSchedule

	var days []DaySlots
	days, err = s.enumerate(ctx, plan, date, date, false)
	if err != nil {
		return
	}
	day = days[0]
	return
}

// ResourceRange returns per-day slots of a resource from from to to inclusive.
// Days past the booking horizon are omitted.
func (s *AvailabilityService) ResourceRange(ctx context.Context, resourceID string, from, to recurrence.Date) (days []DaySlots, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ResourceRange", "resource_id", resourceID, "from", from.String(), "to", to.String())
	defer func() {
		logOutcome(ctx, logger, err, "failed to compute slot range", "slot range computed", "day_count", len(days))
	}()

	switch {
	case from.IsZero() || to.IsZero():
		err = fieldError("range", "from and to are required")
		return
	case to.Before(from):
		err = fieldError("to", "to must not be before from")
		return
	case from.DaysUntil(to) >= MaxRangeDays:
		err = fieldError("to", fmt.Sprintf("range must not exceed %d days", MaxRangeDays))
		return
	}

	var plan slotPlan
	plan, err = s.resourcePlan(ctx, resourceID)
	if err != nil {
		return
	}
	return s.enumerate(ctx, plan, from, to, true)
}

func (s *AvailabilityService) resourcePlan(ctx context.Context, resourceID string) (slotPlan, error) {
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return slotPlan{}, mapRepoError(err)
	}
	policy, err := s.policies.Resolve(ctx, resource.TenantID)
	if err != nil {
		return slotPlan{}, err
	}
	engine := engineResource(resource, persistence.ResourceType{})
	return slotPlan{
		resource: resource,
		target:   scheduler.ResourceTarget(resource.ID),
		duration: engine.SlotDuration(),
		mode:     engine.Mode,
		policy:   policy,
	}, nil
}

// enumerate loads schedules, blocks and confirmed reservations once for the
// whole date range and computes each day. With clip set, days beyond the
// horizon end the range instead of failing it.
func (s *AvailabilityService) enumerate(ctx context.Context, plan slotPlan, from, to recurrence.Date, clip bool) ([]DaySlots, error) {
	if err := scheduler.RequirePolicy(plan.policy); err != nil {
		return nil, err
	}
	now := s.now()
	if clip {
		if horizon := plan.policy.HorizonDate(now); to.After(horizon) {
			to = horizon
		}
		if to.Before(from) {
			return []DaySlots{}, nil
		}
	}

	targets := append([]scheduler.Target{plan.target}, plan.also...)
	filter := persistence.TargetFilter{}
	for _, t := range targets {
		if t.IsResource() {
			filter.ResourceIDs = append(filter.ResourceIDs, t.ID())
		} else {
			filter.AgentIDs = append(filter.AgentIDs, t.ID())
		}
	}

	entries, err := s.store.ListScheduleEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	schedules, err := engineScheduleEntries(entries)
	if err != nil {
		return nil, err
	}
	index, err := scheduler.NewScheduleIndex(schedules)
	if err != nil {
		return nil, err
	}

	loc := plan.policy.Loc()
	open, err := openDates(index.Template(plan.target), plan.mode, loc, from, to)
	if err != nil {
		return nil, err
	}

	rangeStart, rangeEnd := from.Midnight(loc), to.AddDays(1).Midnight(loc)
	filter.From, filter.To = &rangeStart, &rangeEnd
	blockedRows, err := s.store.ListBlockedTimes(ctx, filter)
	if err != nil {
		return nil, err
	}
	blackouts, err := engineBlackouts(blockedRows)
	if err != nil {
		return nil, err
	}
	reservations, err := s.store.ListReservations(ctx, persistence.ReservationFilter{
		ResourceIDs: filter.ResourceIDs,
		AgentIDs:    filter.AgentIDs,
		Statuses:    []string{string(scheduler.StatusConfirmed)},
		From:        &rangeStart,
		To:          &rangeEnd,
	})
	if err != nil {
		return nil, err
	}
	ledger := engineLedger(reservations)

	days := make([]DaySlots, 0, from.DaysUntil(to)+1)
	for date := from; !date.After(to); date = date.AddDays(1) {
		if open != nil && !open[date] && plan.policy.WithinHorizon(date, now) {
			days = append(days, DaySlots{Date: date, Slots: []scheduler.Interval{}})
			continue
		}
		slots, err := scheduler.ComputeFreeSlots(scheduler.SlotQuery{
			Target:    plan.target,
			Date:      date,
			Duration:  plan.duration,
			Mode:      plan.mode,
			Now:       now,
			Policy:    plan.policy,
			Schedules: index,
			Blackouts: blackouts,
			Ledger:    ledger,
			Also:      plan.also,
		})
		if err != nil {
			return nil, err
		}
		days = append(days, DaySlots{Date: date, Slots: slots})
	}
	return days, nil
}

// openDates expands the weekly template over [from, to]. A nil map means
// every day is open.
func openDates(tpl *recurrence.Template, mode scheduler.AvailabilityMode, loc *time.Location, from, to recurrence.Date) (map[recurrence.Date]bool, error) {
	if mode == scheduler.ModeAlways {
		return nil, nil
	}
	occurrences, err := recurrence.NewEngine(loc).Expand(tpl, from, to)
	if err != nil {
		return nil, err
	}
	open := make(map[recurrence.Date]bool, len(occurrences))
	for _, occ := range occurrences {
		open[occ.Date] = true
	}
	return open, nil
}
