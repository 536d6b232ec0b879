package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/memory"
	"github.com/example/booking-engine/internal/persistence/persistencetest"
	"github.com/example/booking-engine/internal/scheduler"
)

// testNow is the Saturday before persistencetest.Base (Monday 09:00 UTC).
var testNow = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store        *memory.Storage
	seed         persistencetest.Seed
	clock        *testClock
	policies     *PolicySource
	booking      *BookingService
	availability *AvailabilityService
	catalog      *CatalogService

	admin    Principal
	customer Principal
	staff    Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	seed := persistencetest.SeedCatalog(t, store)
	clock := &testClock{now: testNow}
	opts := ServiceOptions{Logger: discardLogger(), Retry: persistence.RetryConfig{Attempts: 3, InitialDelay: time.Millisecond}}
	policies := NewPolicySource(store, time.UTC, time.Minute, clock.Now)

	return &testEnv{
		store:        store,
		seed:         seed,
		clock:        clock,
		policies:     policies,
		booking:      NewBookingService(store, policies, sequentialIDs("booking"), clock.Now, opts),
		availability: NewAvailabilityService(store, policies, clock.Now, opts),
		catalog:      NewCatalogService(store, policies, sequentialIDs("catalog"), clock.Now, opts),
		admin:        Principal{UserID: seed.AdminID, TenantID: seed.TenantID, IsAdmin: true},
		customer:     Principal{UserID: seed.CustomerID},
		staff:        Principal{UserID: "user-staff", IsAdmin: true},
	}
}

// setPolicy overwrites the seeded policy and drops the cached copy.
func (e *testEnv) setPolicy(t *testing.T, mutate func(p *persistence.BookingPolicy)) {
	t.Helper()
	ctx := context.Background()
	policy, err := e.store.GetPolicy(ctx, e.seed.TenantID)
	if err != nil {
		t.Fatalf("GetPolicy returned error: %v", err)
	}
	mutate(&policy)
	if err := e.store.UpsertPolicy(ctx, policy); err != nil {
		t.Fatalf("UpsertPolicy returned error: %v", err)
	}
	e.policies.Invalidate(e.seed.TenantID)
}

func (e *testEnv) autoConfirm(t *testing.T) {
	t.Helper()
	e.setPolicy(t, func(p *persistence.BookingPolicy) { p.AutomaticConfirmation = true })
}

// openMonday opens the seeded resource and agent on Mondays from 09:00 to 17:00.
func (e *testEnv) openMonday(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i, entry := range []persistence.ScheduleEntry{
		{ResourceID: e.seed.ResourceID},
		{AgentID: e.seed.AgentID},
	} {
		entry.ID = fmt.Sprintf("schedule-%d", i+1)
		entry.TenantID = e.seed.TenantID
		entry.Weekday = 0
		entry.StartSeconds = 9 * 3600
		entry.EndSeconds = 17 * 3600
		entry.CreatedAt = testNow
		if err := e.store.CreateScheduleEntry(ctx, entry); err != nil {
			t.Fatalf("CreateScheduleEntry returned error: %v", err)
		}
	}
}

// monday returns persistencetest.Base shifted by hours.
func monday(hours float64) time.Time {
	return persistencetest.Base.Add(time.Duration(hours * float64(time.Hour)))
}

func (e *testEnv) book(t *testing.T, principal Principal, startOffset, hours float64) persistence.Reservation {
	t.Helper()
	booking, err := e.booking.CreateBooking(context.Background(), CreateBookingParams{
		Principal:  principal,
		ResourceID: e.seed.ResourceID,
		AgentID:    e.seed.AgentID,
		Start:      monday(startOffset),
		End:        monday(startOffset + hours),
	})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	return booking
}

func expectReason(t *testing.T, err error, want scheduler.Reason) {
	t.Helper()
	got, ok := scheduler.ReasonOf(err)
	if !ok {
		t.Fatalf("expected rejection %q, got %v", want, err)
	}
	if got != want {
		t.Fatalf("expected rejection %q, got %q", want, got)
	}
}

func expectFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors[field]; !ok {
		t.Fatalf("expected field %q in %v", field, vErr.FieldErrors)
	}
}
