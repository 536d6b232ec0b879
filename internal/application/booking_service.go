package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/scheduler"
)

// BookingStore captures the persistence operations needed by the booking service.
type BookingStore interface {
	persistence.CatalogRepository
	persistence.ReservationRepository
	persistence.BookingStore
}

// ServiceOptions carries optional collaborators shared by the services.
type ServiceOptions struct {
	Retry  persistence.RetryConfig
	Logger *slog.Logger
}

// BookingService runs validate-and-commit for reservations and their status changes.
type BookingService struct {
	store       BookingStore
	policies    *PolicySource
	idGenerator func() string
	now         func() time.Time
	retry       persistence.RetryConfig
	logger      *slog.Logger
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(store BookingStore, policies *PolicySource, idGenerator func() string, now func() time.Time, opts ServiceOptions) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = persistence.DefaultRetryConfig()
	}
	return &BookingService{
		store:       store,
		policies:    policies,
		idGenerator: idGenerator,
		now:         now,
		retry:       opts.Retry,
		logger:      defaultLogger(opts.Logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates the request against the policy and the confirmed
// reservations of the resource and agent, then stores it. Validation and
// insert share one booking transaction.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking",
		"principal_id", params.Principal.UserID,
		"resource_id", params.ResourceID,
		"agent_id", params.AgentID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "booking rejected", "booking created",
			"reservation_id", booking.ID, "status", booking.Status)
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if vErr := validateBookingInput(params); vErr.HasErrors() {
		err = vErr
		return
	}

	var resource persistence.Resource
	resource, err = s.store.GetResource(ctx, params.ResourceID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	var resourceType persistence.ResourceType
	resourceType, err = s.store.GetResourceType(ctx, resource.TypeID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	agentID := strings.TrimSpace(params.AgentID)
	if agentID != "" {
		if err = s.checkAgent(ctx, agentID, resource); err != nil {
			return
		}
	}

	var policy *scheduler.Policy
	policy, err = s.policies.ResolveFresh(ctx, resource.TenantID)
	if err != nil {
		return
	}
	if err = scheduler.RequirePolicy(policy); err != nil {
		return
	}

	req := scheduler.BookingRequest{
		Resource: engineResource(resource, resourceType),
		AgentID:  agentID,
		Interval: scheduler.Interval{Start: params.Start, End: params.End},
	}
	notes := strings.TrimSpace(params.Notes)

	err = persistence.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.WithinBookingTx(ctx, resource.ID, agentID, func(tx persistence.BookingTx) error {
			now := s.now()
			existing, err := tx.ConfirmedOverlapping(ctx, resource.ID, agentID, req.Start, req.End)
			if err != nil {
				return err
			}
			if err := scheduler.ValidateReservation(req, now, policy, engineLedger(existing)); err != nil {
				return err
			}
			row := storedReservation(scheduler.NewReservation(s.idGenerator(), params.Principal.UserID, req, notes, policy), now, now)
			if err := tx.InsertReservation(ctx, row); err != nil {
				return err
			}
			booking = row
			return nil
		})
	})
	if err != nil {
		booking = persistence.Reservation{}
		err = mapRepoError(err)
	}
	return
}

// checkAgent accepts an active agent of the resource's tenant. When the
// resource lists agents, the agent must be one of them.
func (s *BookingService) checkAgent(ctx context.Context, agentID string, resource persistence.Resource) error {
	agent, err := s.store.GetAgent(ctx, agentID)
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && agent.TenantID != resource.TenantID) {
		return fieldError("agent", "unknown agent")
	}
	if err != nil {
		return err
	}
	if !agent.Active {
		return fieldError("agent", "agent is inactive")
	}
	if len(resource.AgentIDs) > 0 && !slices.Contains(resource.AgentIDs, agent.ID) {
		return fieldError("agent", "agent is not assigned to this resource")
	}
	return nil
}

// CancelBooking cancels a reservation subject to the cancellation cutoff.
// Cancelling a cancelled reservation returns it unchanged.
func (s *BookingService) CancelBooking(ctx context.Context, principal Principal, reservationID string) (booking persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CancelBooking",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "cancellation rejected", "booking cancelled", "status", booking.Status)
	}()

	return s.transition(ctx, principal, reservationID, false,
		func(r scheduler.Reservation, now time.Time, policy *scheduler.Policy, _ persistence.BookingTx) (scheduler.Reservation, error) {
			return scheduler.Cancel(r, now, policy)
		})
}

// ConfirmBooking promotes a pending reservation after re-checking overlaps.
// Only administrators of the reservation's tenant may confirm.
func (s *BookingService) ConfirmBooking(ctx context.Context, principal Principal, reservationID string) (booking persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ConfirmBooking",
		"principal_id", principal.UserID,
		"reservation_id", reservationID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "confirmation rejected", "booking confirmed", "status", booking.Status)
	}()

	return s.transition(ctx, principal, reservationID, true,
		func(r scheduler.Reservation, now time.Time, policy *scheduler.Policy, tx persistence.BookingTx) (scheduler.Reservation, error) {
			existing, err := tx.ConfirmedOverlapping(ctx, r.ResourceID, r.AgentID, r.Start, r.End)
			if err != nil {
				return r, err
			}
			return scheduler.Confirm(r, now, policy, engineLedger(existing))
		})
}

type transitionFunc func(r scheduler.Reservation, now time.Time, policy *scheduler.Policy, tx persistence.BookingTx) (scheduler.Reservation, error)

// transition applies fn to the current state of a reservation inside its
// reservation transaction and stores the new status when it changed.
func (s *BookingService) transition(ctx context.Context, principal Principal, reservationID string, adminOnly bool, fn transitionFunc) (persistence.Reservation, error) {
	current, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return persistence.Reservation{}, mapRepoError(err)
	}
	if adminOnly {
		if !principal.CanManage(current.TenantID) {
			return persistence.Reservation{}, ErrUnauthorized
		}
	} else if !canAccessReservation(principal, current) {
		return persistence.Reservation{}, ErrUnauthorized
	}

	policy, err := s.policies.ResolveFresh(ctx, current.TenantID)
	if err != nil {
		return persistence.Reservation{}, err
	}

	var result persistence.Reservation
	err = persistence.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.store.WithinReservationTx(ctx, reservationID, func(tx persistence.BookingTx, row persistence.Reservation) error {
			now := s.now()
			next, err := fn(engineReservation(row), now, policy, tx)
			if err != nil {
				return err
			}
			if string(next.Status) != row.Status {
				if err := tx.UpdateReservationStatus(ctx, row.ID, string(next.Status), now); err != nil {
					return err
				}
				row.Status = string(next.Status)
				row.UpdatedAt = now
			}
			result = row
			return nil
		})
	})
	if err != nil {
		return persistence.Reservation{}, mapRepoError(err)
	}
	return result, nil
}

// GetBooking returns a reservation visible to principal.
func (s *BookingService) GetBooking(ctx context.Context, principal Principal, reservationID string) (persistence.Reservation, error) {
	if s == nil {
		return persistence.Reservation{}, fmt.Errorf("BookingService is nil")
	}
	booking, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return persistence.Reservation{}, mapRepoError(err)
	}
	if !canAccessReservation(principal, booking) {
		return persistence.Reservation{}, ErrUnauthorized
	}
	return booking, nil
}

// ListBookings returns reservations scoped by role: staff see everything,
// tenant admins see their tenant and customers see their own.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) (bookings []persistence.Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListBookings", "principal_id", params.Principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to list bookings", "bookings listed", "result_count", len(bookings))
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	filter := persistence.ReservationFilter{From: params.From, To: params.To}
	switch {
	case params.Principal.IsStaff():
	case params.Principal.CanManage(params.Principal.TenantID):
		filter.TenantID = params.Principal.TenantID
	default:
		filter.UserID = params.Principal.UserID
	}
	if params.ResourceID != "" {
		filter.ResourceIDs = []string{params.ResourceID}
	}
	for _, status := range params.Statuses {
		if !status.Valid() {
			err = fieldError("status", "unknown status")
			return
		}
		filter.Statuses = append(filter.Statuses, string(status))
	}

	bookings, err = s.store.ListReservations(ctx, filter)
	err = mapRepoError(err)
	return
}

// CompleteDue marks every confirmed reservation whose end has passed as
// completed and returns how many changed.
func (s *BookingService) CompleteDue(ctx context.Context) (completed int, err error) {
	if s == nil {
		return 0, fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "CompleteDue")
	now := s.now()
	due, err := s.store.ListReservations(ctx, persistence.ReservationFilter{
		Statuses:   []string{string(scheduler.StatusConfirmed)},
		EndsBefore: &now,
	})
	if err != nil {
		logOutcome(ctx, logger, err, "failed to list due reservations", "")
		return 0, err
	}

	var errs []error
	for _, row := range due {
		var changed bool
		txErr := persistence.Retry(ctx, s.retry, func(ctx context.Context) error {
			return s.store.WithinReservationTx(ctx, row.ID, func(tx persistence.BookingTx, current persistence.Reservation) error {
				var done scheduler.Reservation
				done, changed = scheduler.Complete(engineReservation(current), now)
				if !changed {
					return nil
				}
				return tx.UpdateReservationStatus(ctx, current.ID, string(done.Status), now)
			})
		})
		switch {
		case txErr != nil:
			errs = append(errs, fmt.Errorf("complete %s: %w", row.ID, txErr))
		case changed:
			completed++
		}
	}
	err = errors.Join(errs...)
	if err != nil || completed > 0 {
		logOutcome(ctx, logger, err, "failed to complete reservations", "reservations completed", "count", completed)
	}
	return completed, err
}

func canAccessReservation(principal Principal, r persistence.Reservation) bool {
	if principal.UserID == "" {
		return false
	}
	return r.UserID == principal.UserID || principal.CanManage(r.TenantID)
}

func validateBookingInput(params CreateBookingParams) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.ResourceID) == "" {
		vErr.add("resource", "resource is required")
	}
	if params.Start.IsZero() {
		vErr.add("start_datetime", "start_datetime is required")
	}
	if params.End.IsZero() {
		vErr.add("end_datetime", "end_datetime is required")
	}
	return vErr
}
