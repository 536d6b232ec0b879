package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/scheduler"
)

var (
	userCounter        uint64
	resourceCounter    uint64
	agentCounter       uint64
	reservationCounter uint64
)

// referenceTime is the Saturday before ReferenceMonday.
var referenceTime = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

// ReferenceMonday is 09:00 UTC on the first Monday after ReferenceTime.
var ReferenceMonday = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical "now" used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Tenant fixtures ---------------------------

// TenantFixture is a tenant with its booking policy.
type TenantFixture struct {
	ID     string
	Name   string
	Policy persistence.BookingPolicy
}

// NewTenantFixture returns a tenant carrying the default booking policy.
func NewTenantFixture(id string) TenantFixture {
	def := scheduler.DefaultPolicy(id)
	return TenantFixture{
		ID:   id,
		Name: "Tenant " + id,
		Policy: persistence.BookingPolicy{
			TenantID:                id,
			AdvanceBookingLimitDays: def.AdvanceBookingLimitDays,
			CancellationLimitHours:  def.CancellationLimitHours,
			CreatedAt:               referenceTime,
			UpdatedAt:               referenceTime,
		},
	}
}

// Persistence returns the tenant row.
func (f TenantFixture) Persistence() persistence.Tenant {
	return persistence.Tenant{ID: f.ID, Name: f.Name, CreatedAt: referenceTime, UpdatedAt: referenceTime}
}

// ------------------------------ User fixtures ----------------------------

// UserFixture represents a deterministic account.
type UserFixture struct {
	ID           string
	TenantID     string
	Email        string
	DisplayName  string
	PasswordHash string
	IsAdmin      bool
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a customer account with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Email:        id + "@example.test",
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: "hash-" + id,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

// WithUserPasswordHash overrides the stored password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) { f.PasswordHash = hash }
}

// WithTenantAdmin makes the user an administrator of tenantID. An empty
// tenant makes the user staff.
func WithTenantAdmin(tenantID string) UserOption {
	return func(f *UserFixture) {
		f.TenantID = tenantID
		f.IsAdmin = true
	}
}

// Principal returns the principal a session for this user would carry.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, TenantID: f.TenantID, IsAdmin: f.IsAdmin}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		TenantID:     f.TenantID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		IsAdmin:      f.IsAdmin,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
}

// ---------------------------- Resource fixtures --------------------------

// ResourceFixture represents a bookable resource and its type.
type ResourceFixture struct {
	ID              string
	TenantID        string
	TypeID          string
	Name            string
	DurationMinutes int
	Active          bool
	Mode            scheduler.AvailabilityMode
	RequiresAgent   bool
	AgentIDs        []string
}

// ResourceOption configures the generated resource fixture.
type ResourceOption func(*ResourceFixture)

// NewResourceFixture returns an active hourly resource that needs no agent.
func NewResourceFixture(tenantID string, opts ...ResourceOption) ResourceFixture {
	idx := atomic.AddUint64(&resourceCounter, 1)
	fixture := ResourceFixture{
		ID:              fmt.Sprintf("resource-%03d", idx),
		TenantID:        tenantID,
		TypeID:          fmt.Sprintf("type-%03d", idx),
		Name:            fmt.Sprintf("Resource %03d", idx),
		DurationMinutes: 60,
		Active:          true,
		Mode:            scheduler.ModeSchedule,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithResourceID overrides the generated resource ID.
func WithResourceID(id string) ResourceOption {
	return func(f *ResourceFixture) { f.ID = id }
}

// WithDuration sets the slot length in minutes.
func WithDuration(minutes int) ResourceOption {
	return func(f *ResourceFixture) { f.DurationMinutes = minutes }
}

// WithMode sets the availability mode.
func WithMode(mode scheduler.AvailabilityMode) ResourceOption {
	return func(f *ResourceFixture) { f.Mode = mode }
}

// Inactive marks the resource as not bookable.
func Inactive() ResourceOption {
	return func(f *ResourceFixture) { f.Active = false }
}

// WithAgents links agents and makes one mandatory.
func WithAgents(ids ...string) ResourceOption {
	return func(f *ResourceFixture) {
		f.AgentIDs = append([]string(nil), ids...)
		f.RequiresAgent = true
	}
}

// Type returns the resource type row.
func (f ResourceFixture) Type() persistence.ResourceType {
	return persistence.ResourceType{
		ID: f.TypeID, TenantID: f.TenantID, Name: "Type of " + f.Name,
		RequiresAgent: f.RequiresAgent, CreatedAt: referenceTime, UpdatedAt: referenceTime,
	}
}

// Persistence returns the resource row.
func (f ResourceFixture) Persistence() persistence.Resource {
	return persistence.Resource{
		ID:               f.ID,
		TenantID:         f.TenantID,
		TypeID:           f.TypeID,
		Name:             f.Name,
		DurationMinutes:  f.DurationMinutes,
		Active:           f.Active,
		AvailabilityMode: string(f.Mode),
		AgentIDs:         append([]string(nil), f.AgentIDs...),
		CreatedAt:        referenceTime,
		UpdatedAt:        referenceTime,
	}
}

// Engine returns the resource as seen by the availability engine.
func (f ResourceFixture) Engine() scheduler.Resource {
	return scheduler.Resource{
		ID:              f.ID,
		TenantID:        f.TenantID,
		DurationMinutes: f.DurationMinutes,
		Active:          f.Active,
		Mode:            f.Mode,
		RequiresAgent:   f.RequiresAgent,
		AgentIDs:        append([]string(nil), f.AgentIDs...),
	}
}

// ------------------------------ Agent fixtures ---------------------------

// NewAgentFixture returns an active agent of tenantID.
func NewAgentFixture(tenantID string) persistence.Agent {
	idx := atomic.AddUint64(&agentCounter, 1)
	return persistence.Agent{
		ID:        fmt.Sprintf("agent-%03d", idx),
		TenantID:  tenantID,
		Name:      fmt.Sprintf("Agent %03d", idx),
		Email:     fmt.Sprintf("agent-%03d@example.test", idx),
		Active:    true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// --------------------------- Reservation fixtures ------------------------

// ReservationFixture represents a reservation on ReferenceMonday.
type ReservationFixture struct {
	ID         string
	TenantID   string
	UserID     string
	ResourceID string
	AgentID    string
	Start      time.Time
	End        time.Time
	Status     scheduler.ReservationStatus
	Notes      string
}

// ReservationOption configures the generated reservation fixture.
type ReservationOption func(*ReservationFixture)

// NewReservationFixture returns a confirmed one hour reservation of resource
// starting at ReferenceMonday.
func NewReservationFixture(resource ResourceFixture, opts ...ReservationOption) ReservationFixture {
	idx := atomic.AddUint64(&reservationCounter, 1)
	fixture := ReservationFixture{
		ID:         fmt.Sprintf("reservation-%03d", idx),
		TenantID:   resource.TenantID,
		UserID:     "user-customer",
		ResourceID: resource.ID,
		Start:      ReferenceMonday,
		End:        ReferenceMonday.Add(time.Hour),
		Status:     scheduler.StatusConfirmed,
	}
	if len(resource.AgentIDs) > 0 {
		fixture.AgentID = resource.AgentIDs[0]
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// At places the reservation offset after ReferenceMonday for d.
func At(offset, d time.Duration) ReservationOption {
	return func(f *ReservationFixture) {
		f.Start = ReferenceMonday.Add(offset)
		f.End = f.Start.Add(d)
	}
}

// WithStatus overrides the reservation status.
func WithStatus(status scheduler.ReservationStatus) ReservationOption {
	return func(f *ReservationFixture) { f.Status = status }
}

// WithAgent overrides the reservation agent.
func WithAgent(agentID string) ReservationOption {
	return func(f *ReservationFixture) { f.AgentID = agentID }
}

// BookedBy overrides the requesting user.
func BookedBy(userID string) ReservationOption {
	return func(f *ReservationFixture) { f.UserID = userID }
}

// Persistence returns the reservation row.
func (f ReservationFixture) Persistence() persistence.Reservation {
	return persistence.Reservation{
		ID:         f.ID,
		TenantID:   f.TenantID,
		UserID:     f.UserID,
		ResourceID: f.ResourceID,
		AgentID:    f.AgentID,
		Start:      f.Start,
		End:        f.End,
		Status:     string(f.Status),
		Notes:      f.Notes,
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
}

// Engine returns the reservation as seen by the availability engine.
func (f ReservationFixture) Engine() scheduler.Reservation {
	return scheduler.Reservation{
		ID:         f.ID,
		TenantID:   f.TenantID,
		UserID:     f.UserID,
		ResourceID: f.ResourceID,
		AgentID:    f.AgentID,
		Interval:   scheduler.Interval{Start: f.Start, End: f.End},
		Status:     f.Status,
		Notes:      f.Notes,
	}
}

// ------------------------------- Loading ---------------------------------

// Load writes the tenant, its policy, the resources with their types, the
// agents and the users into store.
func Load(tb testing.TB, store persistence.Store, tenant TenantFixture, resources []ResourceFixture, agents []persistence.Agent, users []UserFixture) {
	tb.Helper()
	ctx := context.Background()
	check := func(what string, err error) {
		tb.Helper()
		if err != nil {
			tb.Fatalf("load %s: %v", what, err)
		}
	}

	check("tenant", store.CreateTenant(ctx, tenant.Persistence()))
	check("policy", store.UpsertPolicy(ctx, tenant.Policy))
	for _, agent := range agents {
		check("agent "+agent.ID, store.CreateAgent(ctx, agent))
	}
	for _, r := range resources {
		check("type "+r.TypeID, store.CreateResourceType(ctx, r.Type()))
		check("resource "+r.ID, store.CreateResource(ctx, r.Persistence()))
	}
	for _, u := range users {
		check("user "+u.ID, store.CreateUser(ctx, u.Persistence()))
	}
}

// OpenWeekly opens the resource (or agent) on weekday from start to end hours.
func OpenWeekly(tb testing.TB, store persistence.Store, tenantID, resourceID, agentID string, weekday, startHour, endHour int) {
	tb.Helper()
	entry := persistence.ScheduleEntry{
		ID:           fmt.Sprintf("schedule-%s%s-%d", resourceID, agentID, weekday),
		TenantID:     tenantID,
		ResourceID:   resourceID,
		AgentID:      agentID,
		Weekday:      weekday,
		StartSeconds: startHour * 3600,
		EndSeconds:   endHour * 3600,
		CreatedAt:    referenceTime,
	}
	if err := store.CreateScheduleEntry(context.Background(), entry); err != nil {
		tb.Fatalf("open %s%s on weekday %d: %v", resourceID, agentID, weekday, err)
	}
}
