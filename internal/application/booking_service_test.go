package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
	"github.com/example/booking-engine/internal/scheduler"
)

func TestBookingService_CreateBooking(t *testing.T) {
	t.Parallel()

	t.Run("stores a pending reservation without automatic confirmation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		booking, err := env.booking.CreateBooking(context.Background(), CreateBookingParams{
			Principal:  env.customer,
			ResourceID: env.seed.ResourceID,
			AgentID:    " " + env.seed.AgentID + " ",
			Start:      monday(1),
			End:        monday(2),
			Notes:      "  first visit ",
		})
		if err != nil {
			t.Fatalf("CreateBooking returned error: %v", err)
		}
		if booking.ID != "booking-1" || booking.Status != string(scheduler.StatusPending) {
			t.Fatalf("unexpected booking %+v", booking)
		}
		if booking.Notes != "first visit" || booking.AgentID != env.seed.AgentID {
			t.Fatalf("expected trimmed notes and agent, got %+v", booking)
		}
		if booking.TenantID != env.seed.TenantID || booking.UserID != env.customer.UserID {
			t.Fatalf("booking not attributed to tenant and user: %+v", booking)
		}

		stored, err := env.store.GetReservation(context.Background(), booking.ID)
		if err != nil {
			t.Fatalf("GetReservation returned error: %v", err)
		}
		if !stored.CreatedAt.Equal(testNow) {
			t.Fatalf("expected created_at %v, got %v", testNow, stored.CreatedAt)
		}
	})

	t.Run("confirms immediately with automatic confirmation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.autoConfirm(t)

		booking := env.book(t, env.customer, 1, 1)
		if booking.Status != string(scheduler.StatusConfirmed) {
			t.Fatalf("expected confirmed booking, got %s", booking.Status)
		}
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			mutate  func(p *CreateBookingParams)
			reason  scheduler.Reason
			field   string
			wantErr error
		}{
			{name: "anonymous", mutate: func(p *CreateBookingParams) { p.Principal = Principal{} }, wantErr: ErrUnauthorized},
			{name: "missing resource", mutate: func(p *CreateBookingParams) { p.ResourceID = "" }, field: "resource"},
			{name: "missing start", mutate: func(p *CreateBookingParams) { p.Start = time.Time{} }, field: "start_datetime"},
			{name: "unknown resource", mutate: func(p *CreateBookingParams) { p.ResourceID = "missing" }, wantErr: ErrNotFound},
			{name: "unknown agent", mutate: func(p *CreateBookingParams) { p.AgentID = "missing" }, field: "agent"},
			{name: "agent required", mutate: func(p *CreateBookingParams) { p.AgentID = "" }, reason: scheduler.ReasonAgentRequired},
			{name: "end before start", mutate: func(p *CreateBookingParams) { p.End = p.Start.Add(-time.Hour) }, reason: scheduler.ReasonInvalidInterval},
			{name: "start in the past", mutate: func(p *CreateBookingParams) {
				p.Start, p.End = testNow.Add(-time.Hour), testNow.Add(time.Hour)
			}, reason: scheduler.ReasonPastDate},
			{name: "beyond the horizon", mutate: func(p *CreateBookingParams) {
				p.Start, p.End = monday(24*31), monday(24*31+1)
			}, reason: scheduler.ReasonTooFarInFuture},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				env := newTestEnv(t)

				params := CreateBookingParams{
					Principal:  env.customer,
					ResourceID: env.seed.ResourceID,
					AgentID:    env.seed.AgentID,
					Start:      monday(1),
					End:        monday(2),
				}
				tt.mutate(&params)

				booking, err := env.booking.CreateBooking(context.Background(), params)
				switch {
				case tt.wantErr != nil:
					if !errors.Is(err, tt.wantErr) {
						t.Fatalf("expected %v, got %v", tt.wantErr, err)
					}
				case tt.field != "":
					expectFieldError(t, err, tt.field)
				default:
					expectReason(t, err, tt.reason)
				}
				if booking.ID != "" {
					t.Fatalf("expected no booking on error, got %+v", booking)
				}
			})
		}
	})

	t.Run("rejects agents that cannot serve the resource", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			agent   persistence.Agent
			message string
		}{
			{
				name:    "inactive agent",
				agent:   persistence.Agent{ID: "agent-away", Name: "Away", Active: false},
				message: "agent is inactive",
			},
			{
				name:    "agent not assigned to the resource",
				agent:   persistence.Agent{ID: "agent-other", Name: "Other", Active: true},
				message: "agent is not assigned to this resource",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				env := newTestEnv(t)
				agent := tt.agent
				agent.TenantID = env.seed.TenantID
				agent.CreatedAt, agent.UpdatedAt = testNow, testNow
				if err := env.store.CreateAgent(context.Background(), agent); err != nil {
					t.Fatalf("CreateAgent returned error: %v", err)
				}

				_, err := env.booking.CreateBooking(context.Background(), CreateBookingParams{
					Principal: env.customer, ResourceID: env.seed.ResourceID, AgentID: agent.ID,
					Start: monday(1), End: monday(2),
				})
				expectFieldError(t, err, "agent")
				var vErr *ValidationError
				if errors.As(err, &vErr) && vErr.FieldErrors["agent"] != tt.message {
					t.Fatalf("expected %q, got %q", tt.message, vErr.FieldErrors["agent"])
				}
			})
		}
	})

	t.Run("rejects inactive resources", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		inactive := false
		if _, err := env.catalog.UpdateResource(context.Background(), env.admin, env.seed.ResourceID, ResourceInput{Active: &inactive}); err != nil {
			t.Fatalf("UpdateResource returned error: %v", err)
		}

		_, err := env.booking.CreateBooking(context.Background(), CreateBookingParams{
			Principal: env.customer, ResourceID: env.seed.ResourceID, AgentID: env.seed.AgentID,
			Start: monday(1), End: monday(2),
		})
		expectReason(t, err, scheduler.ReasonResourceInactive)
	})

	t.Run("rejects tenants without a policy", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		base := persistencetest.Base
		if err := env.store.CreateTenant(ctx, persistence.Tenant{ID: "tenant-2", Name: "Other", CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateTenant returned error: %v", err)
		}
		if err := env.store.CreateResourceType(ctx, persistence.ResourceType{ID: "type-2", TenantID: "tenant-2", Name: "Desk", CreatedAt: base, UpdatedAt: base}); err != nil {
			t.Fatalf("CreateResourceType returned error: %v", err)
		}
		if err := env.store.CreateResource(ctx, persistence.Resource{
			ID: "resource-2", TenantID: "tenant-2", TypeID: "type-2", Name: "Desk 1",
			DurationMinutes: 30, Active: true, AvailabilityMode: "always", CreatedAt: base, UpdatedAt: base,
		}); err != nil {
			t.Fatalf("CreateResource returned error: %v", err)
		}

		_, err := env.booking.CreateBooking(ctx, CreateBookingParams{
			Principal: env.customer, ResourceID: "resource-2", Start: monday(1), End: monday(2),
		})
		expectReason(t, err, scheduler.ReasonBookingNotEnabled)
	})

	t.Run("confirmed reservations block overlapping bookings", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.autoConfirm(t)
		env.book(t, env.customer, 1, 1)

		_, err := env.booking.CreateBooking(context.Background(), CreateBookingParams{
			Principal: env.customer, ResourceID: env.seed.ResourceID, AgentID: env.seed.AgentID,
			Start: monday(1.5), End: monday(2.5),
		})
		expectReason(t, err, scheduler.ReasonResourceUnavailable)

		// Touching intervals do not overlap.
		env.book(t, env.customer, 2, 1)
	})

	t.Run("pending reservations do not block", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		first := env.book(t, env.customer, 1, 1)
		second := env.book(t, env.customer, 1, 1)
		if first.ID == second.ID {
			t.Fatalf("expected distinct reservations")
		}
	})

	t.Run("an agent busy on another resource is unavailable", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.autoConfirm(t)
		ctx := context.Background()
		duration := 60
		name, typeID := "Room B", env.seed.TypeID
		other, err := env.catalog.CreateResource(ctx, env.admin, ResourceInput{TypeID: &typeID, Name: &name, DurationMinutes: &duration})
		if err != nil {
			t.Fatalf("CreateResource returned error: %v", err)
		}
		env.book(t, env.customer, 1, 1)

		_, err = env.booking.CreateBooking(ctx, CreateBookingParams{
			Principal: env.customer, ResourceID: other.ID, AgentID: env.seed.AgentID,
			Start: monday(1), End: monday(2),
		})
		expectReason(t, err, scheduler.ReasonAgentUnavailable)
	})
}

func TestBookingService_ConcurrentBookingsAcceptExactlyOne(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.autoConfirm(t)

	const workers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
		other    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.booking.CreateBooking(context.Background(), CreateBookingParams{
				Principal: env.customer, ResourceID: env.seed.ResourceID, AgentID: env.seed.AgentID,
				Start: monday(3), End: monday(4),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case scheduler.IsReason(err, scheduler.ReasonResourceUnavailable):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if accepted != 1 || rejected != workers-1 {
		t.Fatalf("expected 1 accepted and %d rejected, got %d and %d", workers-1, accepted, rejected)
	}
}

func TestBookingService_CancelBooking(t *testing.T) {
	t.Parallel()

	t.Run("owner cancels before the cutoff", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)

		cancelled, err := env.booking.CancelBooking(context.Background(), env.customer, booking.ID)
		if err != nil {
			t.Fatalf("CancelBooking returned error: %v", err)
		}
		if cancelled.Status != string(scheduler.StatusCancelled) {
			t.Fatalf("expected cancelled, got %s", cancelled.Status)
		}

		again, err := env.booking.CancelBooking(context.Background(), env.customer, booking.ID)
		if err != nil {
			t.Fatalf("second CancelBooking returned error: %v", err)
		}
		if again.Status != string(scheduler.StatusCancelled) {
			t.Fatalf("expected cancelled on repeat, got %s", again.Status)
		}
	})

	t.Run("rejects cancellation inside the cutoff", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)
		env.clock.Set(monday(1).Add(-23 * time.Hour))

		_, err := env.booking.CancelBooking(context.Background(), env.customer, booking.ID)
		expectReason(t, err, scheduler.ReasonTooLateToCancel)

		stored, _ := env.store.GetReservation(context.Background(), booking.ID)
		if stored.Status != string(scheduler.StatusPending) {
			t.Fatalf("expected status unchanged, got %s", stored.Status)
		}
	})

	t.Run("cancelling frees the slot", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.autoConfirm(t)
		booking := env.book(t, env.customer, 1, 1)
		if _, err := env.booking.CancelBooking(context.Background(), env.admin, booking.ID); err != nil {
			t.Fatalf("CancelBooking returned error: %v", err)
		}
		env.book(t, env.customer, 1, 1)
	})

	t.Run("other customers may not cancel", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)

		_, err := env.booking.CancelBooking(context.Background(), Principal{UserID: "someone-else"}, booking.ID)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("unknown reservation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.booking.CancelBooking(context.Background(), env.customer, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBookingService_ConfirmBooking(t *testing.T) {
	t.Parallel()

	t.Run("tenant admin confirms a pending reservation", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)

		confirmed, err := env.booking.ConfirmBooking(context.Background(), env.admin, booking.ID)
		if err != nil {
			t.Fatalf("ConfirmBooking returned error: %v", err)
		}
		if confirmed.Status != string(scheduler.StatusConfirmed) || !confirmed.UpdatedAt.Equal(testNow) {
			t.Fatalf("unexpected confirmed booking %+v", confirmed)
		}
	})

	t.Run("customers may not confirm", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)

		_, err := env.booking.ConfirmBooking(context.Background(), env.customer, booking.ID)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("re-checks overlaps against confirmed reservations", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		first := env.book(t, env.customer, 1, 1)
		second := env.book(t, env.customer, 1, 1)

		if _, err := env.booking.ConfirmBooking(context.Background(), env.admin, first.ID); err != nil {
			t.Fatalf("ConfirmBooking returned error: %v", err)
		}
		_, err := env.booking.ConfirmBooking(context.Background(), env.staff, second.ID)
		expectReason(t, err, scheduler.ReasonResourceUnavailable)
	})

	t.Run("cancelled reservations cannot be confirmed", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		booking := env.book(t, env.customer, 1, 1)
		if _, err := env.booking.CancelBooking(context.Background(), env.customer, booking.ID); err != nil {
			t.Fatalf("CancelBooking returned error: %v", err)
		}

		_, err := env.booking.ConfirmBooking(context.Background(), env.admin, booking.ID)
		expectReason(t, err, scheduler.ReasonInvalidTransition)
	})
}

func TestBookingService_GetAndListBookings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	mine := env.book(t, env.customer, 1, 1)
	if err := env.store.CreateUser(ctx, persistence.User{ID: "user-other", Email: "other@example.test", PasswordHash: "hash"}); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	other := Principal{UserID: "user-other"}
	theirs := env.book(t, other, 3, 1)

	if _, err := env.booking.GetBooking(ctx, other, mine.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got, err := env.booking.GetBooking(ctx, env.admin, mine.ID); err != nil || got.ID != mine.ID {
		t.Fatalf("admin GetBooking = %+v, %v", got, err)
	}

	tests := []struct {
		name      string
		params    ListBookingsParams
		wantIDs   []string
		wantError error
	}{
		{name: "customer sees own", params: ListBookingsParams{Principal: env.customer}, wantIDs: []string{mine.ID}},
		{name: "tenant admin sees tenant", params: ListBookingsParams{Principal: env.admin}, wantIDs: []string{mine.ID, theirs.ID}},
		{name: "staff sees everything", params: ListBookingsParams{Principal: env.staff}, wantIDs: []string{mine.ID, theirs.ID}},
		{name: "status filter", params: ListBookingsParams{Principal: env.admin, Statuses: []scheduler.ReservationStatus{scheduler.StatusConfirmed}}, wantIDs: []string{}},
		{name: "anonymous", params: ListBookingsParams{}, wantError: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.booking.ListBookings(ctx, tt.params)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("expected %v, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListBookings returned error: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d bookings, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Fatalf("booking %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}

	_, err := env.booking.ListBookings(ctx, ListBookingsParams{Principal: env.admin, Statuses: []scheduler.ReservationStatus{"bogus"}})
	expectFieldError(t, err, "status")
}

func TestBookingService_CompleteDue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.autoConfirm(t)
	ctx := context.Background()

	early := env.book(t, env.customer, 1, 1)
	late := env.book(t, env.customer, 5, 1)
	env.clock.Set(monday(3))

	completed, err := env.booking.CompleteDue(ctx)
	if err != nil {
		t.Fatalf("CompleteDue returned error: %v", err)
	}
	if completed != 1 {
		t.Fatalf("expected 1 completion, got %d", completed)
	}

	got, _ := env.store.GetReservation(ctx, early.ID)
	if got.Status != string(scheduler.StatusCompleted) {
		t.Fatalf("expected early booking completed, got %s", got.Status)
	}
	got, _ = env.store.GetReservation(ctx, late.ID)
	if got.Status != string(scheduler.StatusConfirmed) {
		t.Fatalf("expected late booking confirmed, got %s", got.Status)
	}

	if completed, err = env.booking.CompleteDue(ctx); err != nil || completed != 0 {
		t.Fatalf("second sweep = %d, %v", completed, err)
	}
}
