// Package persistencetest holds a behavioural suite every persistence.Store
// implementation must pass.
package persistencetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// Factory returns a fresh, migrated store. Cleanup is registered on t.
type Factory func(t *testing.T) persistence.Store

// Base is the reference instant used by seeded rows.
var Base = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

// Seed describes the rows created by SeedCatalog.
type Seed struct {
	TenantID   string
	AdminID    string
	CustomerID string
	TypeID     string
	ResourceID string
	AgentID    string
}

// SeedCatalog creates a tenant with an admin, a customer, a policy, one agent
// and one resource that requires an agent.
func SeedCatalog(t *testing.T, store persistence.Store) Seed {
	t.Helper()
	ctx := context.Background()
	seed := Seed{
		TenantID:   "tenant-1",
		AdminID:    "user-admin",
		CustomerID: "user-customer",
		TypeID:     "type-1",
		ResourceID: "resource-1",
		AgentID:    "agent-1",
	}

	must(t, store.CreateTenant(ctx, persistence.Tenant{ID: seed.TenantID, Name: "Acme", CreatedAt: Base, UpdatedAt: Base}))
	must(t, store.CreateUser(ctx, persistence.User{
		ID: seed.AdminID, TenantID: seed.TenantID, Email: "admin@acme.test", DisplayName: "Admin",
		PasswordHash: "hash", IsAdmin: true, CreatedAt: Base, UpdatedAt: Base,
	}))
	must(t, store.CreateUser(ctx, persistence.User{
		ID: seed.CustomerID, Email: "customer@example.test", DisplayName: "Customer",
		PasswordHash: "hash", CreatedAt: Base, UpdatedAt: Base,
	}))
	must(t, store.UpsertPolicy(ctx, persistence.BookingPolicy{
		TenantID: seed.TenantID, AdvanceBookingLimitDays: 30, CancellationLimitHours: 24,
		CreatedAt: Base, UpdatedAt: Base,
	}))
	must(t, store.CreateResourceType(ctx, persistence.ResourceType{
		ID: seed.TypeID, TenantID: seed.TenantID, Name: "Consultation", RequiresAgent: true, CreatedAt: Base, UpdatedAt: Base,
	}))
	must(t, store.CreateAgent(ctx, persistence.Agent{
		ID: seed.AgentID, TenantID: seed.TenantID, Name: "Alice", Email: "alice@acme.test", Active: true,
		CreatedAt: Base, UpdatedAt: Base,
	}))
	must(t, store.CreateResource(ctx, persistence.Resource{
		ID: seed.ResourceID, TenantID: seed.TenantID, TypeID: seed.TypeID, Name: "Room A",
		DurationMinutes: 60, Active: true, AvailabilityMode: "schedule", AgentIDs: []string{seed.AgentID},
		CreatedAt: Base, UpdatedAt: Base,
	}))
	return seed
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// Reservation builds a reservation on the seeded resource starting offset
// hours after Base.
func (s Seed) Reservation(id string, offset, hours int, status string) persistence.Reservation {
	start := Base.Add(time.Duration(offset) * time.Hour)
	return persistence.Reservation{
		ID: id, TenantID: s.TenantID, UserID: s.CustomerID, ResourceID: s.ResourceID, AgentID: s.AgentID,
		Start: start, End: start.Add(time.Duration(hours) * time.Hour), Status: status,
		CreatedAt: Base, UpdatedAt: Base,
	}
}

// Insert stores r through a booking transaction.
func Insert(t *testing.T, store persistence.Store, r persistence.Reservation) {
	t.Helper()
	err := store.WithinBookingTx(context.Background(), r.ResourceID, r.AgentID, func(tx persistence.BookingTx) error {
		return tx.InsertReservation(context.Background(), r)
	})
	if err != nil {
		t.Fatalf("insert reservation %s: %v", r.ID, err)
	}
}

// Run executes the suite against stores produced by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, factory) })
	t.Run("policies", func(t *testing.T) { testPolicies(t, factory) })
	t.Run("catalog", func(t *testing.T) { testCatalog(t, factory) })
	t.Run("schedules", func(t *testing.T) { testSchedules(t, factory) })
	t.Run("blocked times", func(t *testing.T) { testBlockedTimes(t, factory) })
	t.Run("reservations", func(t *testing.T) { testReservations(t, factory) })
	t.Run("concurrent bookings", func(t *testing.T) { testConcurrentBookings(t, factory) })
}

func testUsers(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	got, err := store.GetUserByEmail(ctx, "ADMIN@acme.test")
	if err != nil {
		t.Fatalf("GetUserByEmail returned error: %v", err)
	}
	if got.ID != seed.AdminID || got.TenantID != seed.TenantID || !got.IsAdmin {
		t.Fatalf("unexpected user: %+v", got)
	}
	if !got.CreatedAt.Equal(Base) {
		t.Fatalf("expected created_at %v, got %v", Base, got.CreatedAt)
	}

	err = store.CreateUser(ctx, persistence.User{ID: "dup", Email: "Admin@Acme.test", PasswordHash: "x", CreatedAt: Base, UpdatedAt: Base})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	customer, err := store.GetUser(ctx, seed.CustomerID)
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if customer.TenantID != "" {
		t.Fatalf("expected customer without tenant, got %q", customer.TenantID)
	}
	customer.DisplayName = "Renamed"
	customer.UpdatedAt = Base.Add(time.Hour)
	if err := store.UpdateUser(ctx, customer); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if got, _ := store.GetUser(ctx, seed.CustomerID); got.DisplayName != "Renamed" {
		t.Fatalf("expected rename to persist, got %+v", got)
	}

	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tenants, err := store.ListTenants(ctx)
	if err != nil || len(tenants) != 1 || tenants[0].Name != "Acme" {
		t.Fatalf("unexpected tenants %+v, %v", tenants, err)
	}
}

func testPolicies(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	policy, err := store.GetPolicy(ctx, seed.TenantID)
	if err != nil {
		t.Fatalf("GetPolicy returned error: %v", err)
	}
	policy.AutomaticConfirmation = true
	policy.AdvanceBookingLimitDays = 7
	policy.UpdatedAt = Base.Add(time.Hour)
	if err := store.UpsertPolicy(ctx, policy); err != nil {
		t.Fatalf("UpsertPolicy returned error: %v", err)
	}
	got, err := store.GetPolicy(ctx, seed.TenantID)
	if err != nil {
		t.Fatalf("GetPolicy returned error: %v", err)
	}
	if !got.AutomaticConfirmation || got.AdvanceBookingLimitDays != 7 || !got.CreatedAt.Equal(Base) {
		t.Fatalf("unexpected policy: %+v", got)
	}

	must(t, store.CreateTenant(ctx, persistence.Tenant{ID: "tenant-2", Name: "Other", CreatedAt: Base, UpdatedAt: Base}))
	if _, err := store.GetPolicy(ctx, "tenant-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for tenant without policy, got %v", err)
	}
}

func testCatalog(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	resource, err := store.GetResource(ctx, seed.ResourceID)
	if err != nil {
		t.Fatalf("GetResource returned error: %v", err)
	}
	if len(resource.AgentIDs) != 1 || resource.AgentIDs[0] != seed.AgentID {
		t.Fatalf("expected agent link, got %+v", resource.AgentIDs)
	}
	if resource.PriceCents != nil {
		t.Fatalf("expected no price, got %d", *resource.PriceCents)
	}

	price := int64(2500)
	resource.PriceCents = &price
	resource.AgentIDs = nil
	resource.Active = false
	resource.UpdatedAt = Base.Add(time.Hour)
	if err := store.UpdateResource(ctx, resource); err != nil {
		t.Fatalf("UpdateResource returned error: %v", err)
	}
	list, err := store.ListResources(ctx, seed.TenantID)
	if err != nil {
		t.Fatalf("ListResources returned error: %v", err)
	}
	if len(list) != 1 || list[0].Active || list[0].PriceCents == nil || *list[0].PriceCents != 2500 || len(list[0].AgentIDs) != 0 {
		t.Fatalf("unexpected resources: %+v", list)
	}

	err = store.CreateAgent(ctx, persistence.Agent{ID: "agent-2", TenantID: seed.TenantID, Name: "Bob", Email: "ALICE@acme.test", CreatedAt: Base, UpdatedAt: Base})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for agent email, got %v", err)
	}

	err = store.CreateResource(ctx, persistence.Resource{
		ID: "resource-2", TenantID: seed.TenantID, TypeID: "missing", Name: "Ghost", DurationMinutes: 30,
		CreatedAt: Base, UpdatedAt: Base,
	})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	types, err := store.ListResourceTypes(ctx, seed.TenantID)
	if err != nil || len(types) != 1 || !types[0].RequiresAgent {
		t.Fatalf("unexpected resource types %+v, %v", types, err)
	}
	agents, err := store.ListAgents(ctx, seed.TenantID)
	if err != nil || len(agents) != 1 {
		t.Fatalf("unexpected agents %+v, %v", agents, err)
	}
}

func testSchedules(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	entry := persistence.ScheduleEntry{
		ID: "sched-1", TenantID: seed.TenantID, ResourceID: seed.ResourceID,
		Weekday: 0, StartSeconds: 9 * 3600, EndSeconds: 12 * 3600, CreatedAt: Base,
	}
	must(t, store.CreateScheduleEntry(ctx, entry))
	must(t, store.CreateScheduleEntry(ctx, persistence.ScheduleEntry{
		ID: "sched-2", TenantID: seed.TenantID, AgentID: seed.AgentID,
		Weekday: 0, StartSeconds: 8 * 3600, EndSeconds: 16 * 3600, CreatedAt: Base,
	}))

	dup := entry
	dup.ID = "sched-3"
	if err := store.CreateScheduleEntry(ctx, dup); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second monday entry, got %v", err)
	}

	both := entry
	both.ID = "sched-4"
	both.Weekday = 1
	both.AgentID = seed.AgentID
	if err := store.CreateScheduleEntry(ctx, both); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for double target, got %v", err)
	}

	got, err := store.ListScheduleEntries(ctx, persistence.TargetFilter{ResourceIDs: []string{seed.ResourceID}})
	if err != nil || len(got) != 1 || got[0].ID != "sched-1" {
		t.Fatalf("unexpected resource schedules %+v, %v", got, err)
	}
	got, err = store.ListScheduleEntries(ctx, persistence.TargetFilter{TenantID: seed.TenantID})
	if err != nil || len(got) != 2 {
		t.Fatalf("unexpected tenant schedules %+v, %v", got, err)
	}

	must(t, store.DeleteScheduleEntry(ctx, "sched-1"))
	if err := store.DeleteScheduleEntry(ctx, "sched-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testBlockedTimes(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	for i, offset := range []int{0, 24, 48} {
		must(t, store.CreateBlockedTime(ctx, persistence.BlockedTime{
			ID: fmt.Sprintf("block-%d", i), TenantID: seed.TenantID, ResourceID: seed.ResourceID,
			Start: Base.Add(time.Duration(offset) * time.Hour), End: Base.Add(time.Duration(offset+1) * time.Hour),
			Reason: "maintenance", CreatedAt: Base,
		}))
	}

	from := Base.Add(time.Hour)
	to := Base.Add(25 * time.Hour)
	got, err := store.ListBlockedTimes(ctx, persistence.TargetFilter{ResourceIDs: []string{seed.ResourceID}, From: &from, To: &to})
	if err != nil {
		t.Fatalf("ListBlockedTimes returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "block-1" {
		t.Fatalf("expected only block-1 within range, got %+v", got)
	}
	if !got[0].Start.Equal(Base.Add(24 * time.Hour)) {
		t.Fatalf("unexpected start %v", got[0].Start)
	}

	err = store.CreateBlockedTime(ctx, persistence.BlockedTime{
		ID: "block-bad", TenantID: seed.TenantID, AgentID: seed.AgentID, Start: Base, End: Base, CreatedAt: Base,
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for empty interval, got %v", err)
	}

	must(t, store.DeleteBlockedTime(ctx, "block-0"))
	if _, err := store.GetBlockedTime(ctx, "block-0"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testReservations(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	Insert(t, store, seed.Reservation("res-1", 0, 1, "confirmed"))
	Insert(t, store, seed.Reservation("res-2", 1, 1, "pending"))

	err := store.WithinBookingTx(ctx, seed.ResourceID, "", func(tx persistence.BookingTx) error {
		overlapping, err := tx.ConfirmedOverlapping(ctx, seed.ResourceID, "", Base.Add(30*time.Minute), Base.Add(2*time.Hour))
		if err != nil {
			return err
		}
		if len(overlapping) != 1 || overlapping[0].ID != "res-1" {
			t.Errorf("expected res-1 to overlap, got %+v", overlapping)
		}
		touching, err := tx.ConfirmedOverlapping(ctx, seed.ResourceID, "", Base.Add(time.Hour), Base.Add(2*time.Hour))
		if err != nil {
			return err
		}
		if len(touching) != 0 {
			t.Errorf("touching reservations must not overlap, got %+v", touching)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinBookingTx returned error: %v", err)
	}

	rollback := errors.New("rollback")
	err = store.WithinBookingTx(ctx, seed.ResourceID, seed.AgentID, func(tx persistence.BookingTx) error {
		if err := tx.InsertReservation(ctx, seed.Reservation("res-3", 5, 1, "confirmed")); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if _, err := store.GetReservation(ctx, "res-3"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rolled back reservation to be absent, got %v", err)
	}

	updatedAt := Base.Add(time.Hour)
	err = store.WithinReservationTx(ctx, "res-2", func(tx persistence.BookingTx, r persistence.Reservation) error {
		if r.Status != "pending" {
			t.Errorf("expected pending, got %s", r.Status)
		}
		return tx.UpdateReservationStatus(ctx, r.ID, "cancelled", updatedAt)
	})
	if err != nil {
		t.Fatalf("WithinReservationTx returned error: %v", err)
	}
	got, err := store.GetReservation(ctx, "res-2")
	if err != nil || got.Status != "cancelled" || !got.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("unexpected reservation %+v, %v", got, err)
	}

	err = store.WithinReservationTx(ctx, "missing", func(persistence.BookingTx, persistence.Reservation) error { return nil })
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	endsBefore := Base.Add(90 * time.Minute)
	list, err := store.ListReservations(ctx, persistence.ReservationFilter{
		Statuses:   []string{"confirmed"},
		EndsBefore: &endsBefore,
	})
	if err != nil || len(list) != 1 || list[0].ID != "res-1" {
		t.Fatalf("unexpected ended reservations %+v, %v", list, err)
	}
	list, err = store.ListReservations(ctx, persistence.ReservationFilter{UserID: seed.CustomerID})
	if err != nil || len(list) != 2 || list[0].ID != "res-1" {
		t.Fatalf("unexpected user reservations %+v, %v", list, err)
	}
	list, err = store.ListReservations(ctx, persistence.ReservationFilter{AgentIDs: []string{seed.AgentID}, Statuses: []string{"cancelled"}})
	if err != nil || len(list) != 1 || list[0].ID != "res-2" {
		t.Fatalf("unexpected agent reservations %+v, %v", list, err)
	}
}

// testConcurrentBookings races several validate-and-commit sequences for the
// same slot; exactly one may win.
func testConcurrentBookings(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t)
	seed := SeedCatalog(t, store)

	errTaken := errors.New("slot taken")
	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := seed.Reservation(fmt.Sprintf("race-%d", i), 2, 1, "confirmed")
			err := persistence.Retry(ctx, persistence.RetryConfig{Attempts: 5, InitialDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
				return store.WithinBookingTx(ctx, r.ResourceID, r.AgentID, func(tx persistence.BookingTx) error {
					existing, err := tx.ConfirmedOverlapping(ctx, r.ResourceID, r.AgentID, r.Start, r.End)
					if err != nil {
						return err
					}
					if len(existing) > 0 {
						return errTaken
					}
					return tx.InsertReservation(ctx, r)
				})
			})
			switch {
			case err == nil:
				mu.Lock()
				accepted++
				mu.Unlock()
			case errors.Is(err, errTaken):
			default:
				t.Errorf("worker %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted booking, got %d", accepted)
	}
	list, err := store.ListReservations(ctx, persistence.ReservationFilter{ResourceIDs: []string{seed.ResourceID}, Statuses: []string{"confirmed"}})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one confirmed reservation, got %+v, %v", list, err)
	}
}
