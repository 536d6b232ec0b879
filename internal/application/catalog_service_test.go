package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/persistence/persistencetest"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

func ptr[T any](v T) *T { return &v }

func TestCatalogService_CreateTenant(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.catalog.CreateTenant(ctx, env.admin, "Nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected tenant admins to be refused, got %v", err)
	}
	if _, err := env.catalog.CreateTenant(ctx, env.staff, "  "); err == nil {
		t.Fatalf("expected validation error for blank name")
	}

	tenant, err := env.catalog.CreateTenant(ctx, env.staff, " Globex ")
	if err != nil {
		t.Fatalf("CreateTenant returned error: %v", err)
	}
	if tenant.Name != "Globex" {
		t.Fatalf("expected trimmed name, got %q", tenant.Name)
	}

	policy, err := env.store.GetPolicy(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("expected default policy, got %v", err)
	}
	if policy.AdvanceBookingLimitDays != scheduler.DefaultAdvanceBookingLimitDays ||
		policy.CancellationLimitHours != scheduler.DefaultCancellationLimitHours ||
		policy.AutomaticConfirmation {
		t.Fatalf("unexpected default policy %+v", policy)
	}

	tenants, err := env.catalog.ListTenants(ctx, env.staff)
	if err != nil || len(tenants) != 2 {
		t.Fatalf("staff ListTenants = %v, %v", tenants, err)
	}
	tenants, err = env.catalog.ListTenants(ctx, env.admin)
	if err != nil || len(tenants) != 1 || tenants[0].ID != env.seed.TenantID {
		t.Fatalf("admin ListTenants = %v, %v", tenants, err)
	}
	if _, err := env.catalog.ListTenants(ctx, env.customer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for customers, got %v", err)
	}
}

func TestCatalogService_Resources(t *testing.T) {
	t.Parallel()

	t.Run("creates a resource with defaults", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		resource, err := env.catalog.CreateResource(context.Background(), env.admin, ResourceInput{
			TypeID:          ptr(env.seed.TypeID),
			Name:            ptr(" Room B "),
			DurationMinutes: ptr(45),
			PriceCents:      ptr(int64(2500)),
			AgentIDs:        ptr([]string{env.seed.AgentID, env.seed.AgentID, ""}),
		})
		if err != nil {
			t.Fatalf("CreateResource returned error: %v", err)
		}
		if resource.TenantID != env.seed.TenantID || resource.Name != "Room B" || !resource.Active {
			t.Fatalf("unexpected resource %+v", resource)
		}
		if resource.AvailabilityMode != string(scheduler.ModeSchedule) {
			t.Fatalf("expected schedule mode, got %s", resource.AvailabilityMode)
		}
		if len(resource.AgentIDs) != 1 || resource.PriceCents == nil || *resource.PriceCents != 2500 {
			t.Fatalf("unexpected agents or price: %+v", resource)
		}
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()

		tests := []struct {
			name  string
			input ResourceInput
			field string
		}{
			{name: "missing fields", input: ResourceInput{}, field: "name"},
			{name: "bad duration", input: ResourceInput{TypeID: ptr(env.seed.TypeID), Name: ptr("x"), DurationMinutes: ptr(0)}, field: "duration"},
			{name: "bad mode", input: ResourceInput{TypeID: ptr(env.seed.TypeID), Name: ptr("x"), DurationMinutes: ptr(30), AvailabilityMode: ptr("sometimes")}, field: "availability_mode"},
			{name: "unknown type", input: ResourceInput{TypeID: ptr("missing"), Name: ptr("x"), DurationMinutes: ptr(30)}, field: "type"},
			{name: "unknown agent", input: ResourceInput{TypeID: ptr(env.seed.TypeID), Name: ptr("x"), DurationMinutes: ptr(30), AgentIDs: ptr([]string{"missing"})}, field: "agents"},
			{name: "negative price", input: ResourceInput{TypeID: ptr(env.seed.TypeID), Name: ptr("x"), DurationMinutes: ptr(30), PriceCents: ptr(int64(-1))}, field: "price"},
		}
		for _, tt := range tests {
			_, err := env.catalog.CreateResource(ctx, env.admin, tt.input)
			if err == nil {
				t.Fatalf("%s: expected error", tt.name)
			}
			expectFieldError(t, err, tt.field)
		}
	})

	t.Run("only administrators of the tenant manage resources", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		input := ResourceInput{TypeID: ptr(env.seed.TypeID), Name: ptr("x"), DurationMinutes: ptr(30)}

		if _, err := env.catalog.CreateResource(ctx, env.customer, input); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for customers, got %v", err)
		}
		foreign := Principal{UserID: "other-admin", TenantID: "tenant-other", IsAdmin: true}
		if _, err := env.catalog.UpdateResource(ctx, foreign, env.seed.ResourceID, ResourceInput{Name: ptr("hijack")}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for another tenant, got %v", err)
		}
		input.TenantID = env.seed.TenantID
		if _, err := env.catalog.CreateResource(ctx, env.staff, input); err != nil {
			t.Fatalf("staff CreateResource returned error: %v", err)
		}
	})

	t.Run("patches only provided fields", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.clock.Set(testNow.Add(time.Hour))

		updated, err := env.catalog.UpdateResource(context.Background(), env.admin, env.seed.ResourceID, ResourceInput{
			Description: ptr("corner room"),
			AgentIDs:    ptr([]string{}),
		})
		if err != nil {
			t.Fatalf("UpdateResource returned error: %v", err)
		}
		if updated.Name != "Room A" || updated.DurationMinutes != 60 || updated.Description != "corner room" {
			t.Fatalf("unexpected update result %+v", updated)
		}
		if len(updated.AgentIDs) != 0 || !updated.UpdatedAt.Equal(testNow.Add(time.Hour)) {
			t.Fatalf("expected agents cleared and updated_at bumped, got %+v", updated)
		}

		stored, err := env.catalog.GetResource(context.Background(), env.seed.ResourceID)
		if err != nil || stored.Description != "corner room" {
			t.Fatalf("GetResource = %+v, %v", stored, err)
		}
	})

	t.Run("hides inactive resources from customers", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		ctx := context.Background()
		if _, err := env.catalog.UpdateResource(ctx, env.admin, env.seed.ResourceID, ResourceInput{Active: ptr(false)}); err != nil {
			t.Fatalf("UpdateResource returned error: %v", err)
		}

		visible, err := env.catalog.ListResources(ctx, env.customer, env.seed.TenantID)
		if err != nil || len(visible) != 0 {
			t.Fatalf("customer ListResources = %v, %v", visible, err)
		}
		all, err := env.catalog.ListResources(ctx, env.admin, "")
		if err != nil || len(all) != 1 {
			t.Fatalf("admin ListResources = %v, %v", all, err)
		}
	})
}

func TestCatalogService_TypesAndAgents(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	rt, err := env.catalog.CreateResourceType(ctx, env.admin, ResourceTypeInput{Name: "Desk"})
	if err != nil {
		t.Fatalf("CreateResourceType returned error: %v", err)
	}
	if !rt.RequiresAgent {
		t.Fatalf("expected resource types to require an agent by default")
	}
	rt, err = env.catalog.CreateResourceType(ctx, env.admin, ResourceTypeInput{Name: "Locker", RequiresAgent: ptr(false)})
	if err != nil || rt.RequiresAgent {
		t.Fatalf("CreateResourceType = %+v, %v", rt, err)
	}
	types, err := env.catalog.ListResourceTypes(ctx, env.seed.TenantID)
	if err != nil || len(types) != 3 {
		t.Fatalf("ListResourceTypes = %v, %v", types, err)
	}

	agent, err := env.catalog.CreateAgent(ctx, env.admin, AgentInput{Name: "Bob", Email: " BOB@acme.test "})
	if err != nil {
		t.Fatalf("CreateAgent returned error: %v", err)
	}
	if agent.Email != "bob@acme.test" || !agent.Active {
		t.Fatalf("unexpected agent %+v", agent)
	}
	if _, err := env.catalog.CreateAgent(ctx, env.admin, AgentInput{Name: "Bobby", Email: "bob@acme.test"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate email, got %v", err)
	}
	_, err = env.catalog.CreateAgent(ctx, env.admin, AgentInput{Name: "", Email: "not-an-email"})
	expectFieldError(t, err, "email")

	agents, err := env.catalog.ListAgents(ctx, env.customer, env.seed.TenantID)
	if err != nil || len(agents) != 2 {
		t.Fatalf("ListAgents = %v, %v", agents, err)
	}
}

func TestCatalogService_Schedules(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	entry, err := env.catalog.CreateScheduleEntry(ctx, env.admin, ScheduleEntryInput{
		ResourceID: env.seed.ResourceID,
		Weekday:    recurrence.Weekday(2),
		Start:      recurrence.TimeOfDay(9 * 3600),
		End:        recurrence.TimeOfDay(12 * 3600),
	})
	if err != nil {
		t.Fatalf("CreateScheduleEntry returned error: %v", err)
	}
	if entry.TenantID != env.seed.TenantID || entry.ResourceID != env.seed.ResourceID || entry.AgentID != "" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	tests := []struct {
		name  string
		input ScheduleEntryInput
		field string
	}{
		{name: "duplicate weekday", input: ScheduleEntryInput{ResourceID: env.seed.ResourceID, Weekday: 2, Start: 13 * 3600, End: 14 * 3600}, field: "day_of_week"},
		{name: "both targets", input: ScheduleEntryInput{ResourceID: env.seed.ResourceID, AgentID: env.seed.AgentID, Weekday: 3, Start: 0, End: 3600}, field: "target"},
		{name: "no target", input: ScheduleEntryInput{Weekday: 3, Start: 0, End: 3600}, field: "target"},
		{name: "bad weekday", input: ScheduleEntryInput{AgentID: env.seed.AgentID, Weekday: 7, Start: 0, End: 3600}, field: "day_of_week"},
		{name: "end before start", input: ScheduleEntryInput{AgentID: env.seed.AgentID, Weekday: 1, Start: 3600, End: 0}, field: "end_time"},
		{name: "unknown agent", input: ScheduleEntryInput{AgentID: "missing", Weekday: 1, Start: 0, End: 3600}, field: "agent"},
	}
	for _, tt := range tests {
		_, err := env.catalog.CreateScheduleEntry(ctx, env.admin, tt.input)
		if err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		expectFieldError(t, err, tt.field)
	}

	entries, err := env.catalog.ListScheduleEntries(ctx, "", env.seed.ResourceID, "")
	if err != nil || len(entries) != 1 {
		t.Fatalf("ListScheduleEntries = %v, %v", entries, err)
	}
	if _, err := env.catalog.ListScheduleEntries(ctx, "", "", ""); err == nil {
		t.Fatalf("expected an unfiltered listing to be refused")
	}

	if err := env.catalog.DeleteScheduleEntry(ctx, env.customer, entry.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.catalog.DeleteScheduleEntry(ctx, env.admin, entry.ID); err != nil {
		t.Fatalf("DeleteScheduleEntry returned error: %v", err)
	}
	if err := env.catalog.DeleteScheduleEntry(ctx, env.admin, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCatalogService_BlockedTimes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	start := monday(1)

	blocked, err := env.catalog.CreateBlockedTime(ctx, env.admin, BlockedTimeInput{
		AgentID: env.seed.AgentID, Start: start, End: start.Add(2 * time.Hour), Reason: " holiday ",
	})
	if err != nil {
		t.Fatalf("CreateBlockedTime returned error: %v", err)
	}
	if blocked.Reason != "holiday" || blocked.AgentID != env.seed.AgentID {
		t.Fatalf("unexpected blocked time %+v", blocked)
	}

	_, err = env.catalog.CreateBlockedTime(ctx, env.admin, BlockedTimeInput{ResourceID: env.seed.ResourceID, Start: start, End: start})
	expectFieldError(t, err, "end_datetime")

	from, to := start.Add(time.Hour), start.Add(5*time.Hour)
	list, err := env.catalog.ListBlockedTimes(ctx, env.seed.TenantID, "", "", &from, &to)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListBlockedTimes = %v, %v", list, err)
	}
	later := start.Add(3 * time.Hour)
	list, err = env.catalog.ListBlockedTimes(ctx, env.seed.TenantID, "", "", &later, nil)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no blocks after the interval, got %v, %v", list, err)
	}

	if err := env.catalog.DeleteBlockedTime(ctx, env.admin, blocked.ID); err != nil {
		t.Fatalf("DeleteBlockedTime returned error: %v", err)
	}
}

func TestCatalogService_Policy(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// Warm the cache so the update must invalidate it.
	if _, err := env.policies.Resolve(ctx, env.seed.TenantID); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	updated, err := env.catalog.UpdatePolicy(ctx, env.admin, PolicyInput{
		AdvanceBookingLimitDays: 7,
		CancellationLimitHours:  2,
		AutomaticConfirmation:   true,
		NotificationEmail:       "Desk@Acme.test",
	})
	if err != nil {
		t.Fatalf("UpdatePolicy returned error: %v", err)
	}
	if updated.NotificationEmail != "desk@acme.test" || !updated.CreatedAt.Equal(persistencetest.Base) {
		t.Fatalf("unexpected policy %+v", updated)
	}

	resolved, err := env.policies.Resolve(ctx, env.seed.TenantID)
	if err != nil || resolved == nil || resolved.AdvanceBookingLimitDays != 7 || !resolved.AutomaticConfirmation {
		t.Fatalf("expected cache to reflect update, got %+v, %v", resolved, err)
	}

	got, err := env.catalog.GetPolicy(ctx, env.admin, "")
	if err != nil || got.CancellationLimitHours != 2 {
		t.Fatalf("GetPolicy = %+v, %v", got, err)
	}
	if _, err := env.catalog.GetPolicy(ctx, env.customer, env.seed.TenantID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	_, err = env.catalog.UpdatePolicy(ctx, env.admin, PolicyInput{AdvanceBookingLimitDays: -1})
	expectFieldError(t, err, "advance_booking_limit")
}
