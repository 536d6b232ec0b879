package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/persistence/memory"
	"github.com/example/booking-engine/internal/scheduler"
)

func TestServiceFactoryBuildsWorkingServices(t *testing.T) {
	factory := NewServiceFactory(WithIDGenerator(NewIDGenerator("gen")))
	store := memory.New()

	tenant := NewTenantFixture("tenant-a")
	tenant.Policy.AutomaticConfirmation = true
	agent := NewAgentFixture(tenant.ID)
	resource := NewResourceFixture(tenant.ID, WithAgents(agent.ID))
	customer := NewUserFixture()
	Load(t, store, tenant, []ResourceFixture{resource}, []persistence.Agent{agent}, []UserFixture{customer})
	OpenWeekly(t, store, tenant.ID, resource.ID, "", 0, 9, 17)
	OpenWeekly(t, store, tenant.ID, "", agent.ID, 0, 9, 17)

	services := factory.Build(t, store)
	ctx := context.Background()

	booking, err := services.Booking.CreateBooking(ctx, application.CreateBookingParams{
		Principal:  customer.Principal(),
		ResourceID: resource.ID,
		AgentID:    agent.ID,
		Start:      ReferenceMonday,
		End:        ReferenceMonday.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	if booking.ID != "gen-1" || booking.Status != string(scheduler.StatusConfirmed) {
		t.Fatalf("unexpected booking %+v", booking)
	}
	if !booking.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), booking.CreatedAt)
	}

	day, err := services.Availability.ResourceSlots(ctx, resource.ID, factory.Clock.Today(time.UTC).AddDays(2))
	if err != nil {
		t.Fatalf("ResourceSlots returned error: %v", err)
	}
	if len(day.Slots) != 7 {
		t.Fatalf("expected 7 free slots after one booking, got %d", len(day.Slots))
	}
}

func TestServiceFactoryAuthUsesFastHash(t *testing.T) {
	factory := NewServiceFactory()
	store := memory.New()
	services := factory.Build(t, store)
	ctx := context.Background()

	user, err := services.Auth.RegisterUser(ctx, application.RegisterUserParams{Email: "staff@example.test", Password: "long-password", IsAdmin: true})
	if err != nil {
		t.Fatalf("RegisterUser returned error: %v", err)
	}
	result, err := services.Auth.Authenticate(ctx, application.AuthenticateParams{Email: user.Email, Password: "long-password"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if !result.Session.ExpiresAt.Equal(factory.Clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected session expiry %v", result.Session.ExpiresAt)
	}
}
