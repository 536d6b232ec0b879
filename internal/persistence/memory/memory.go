// Package memory provides an in-process persistence.Store used by tests and
// single-node development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/booking-engine/internal/persistence"
)

// Storage keeps every table in maps guarded by a single RWMutex. Booking
// transactions additionally hold per-resource and per-agent locks so that
// validate-and-commit sequences on the same key never interleave.
type Storage struct {
	mu            sync.RWMutex
	tenants       map[string]persistence.Tenant
	users         map[string]persistence.User
	policies      map[string]persistence.BookingPolicy
	resourceTypes map[string]persistence.ResourceType
	resources     map[string]persistence.Resource
	agents        map[string]persistence.Agent
	schedules     map[string]persistence.ScheduleEntry
	blocked       map[string]persistence.BlockedTime
	reservations  map[string]persistence.Reservation

	locks *keyedMutex
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		tenants:       make(map[string]persistence.Tenant),
		users:         make(map[string]persistence.User),
		policies:      make(map[string]persistence.BookingPolicy),
		resourceTypes: make(map[string]persistence.ResourceType),
		resources:     make(map[string]persistence.Resource),
		agents:        make(map[string]persistence.Agent),
		schedules:     make(map[string]persistence.ScheduleEntry),
		blocked:       make(map[string]persistence.BlockedTime),
		reservations:  make(map[string]persistence.Reservation),
		locks:         newKeyedMutex(),
	}
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Storage) Close() error { return nil }

// --- TenantRepository ---

func (s *Storage) CreateTenant(_ context.Context, tenant persistence.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tenant.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.tenants[tenant.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.tenants[tenant.ID] = tenant
	return nil
}

func (s *Storage) GetTenant(_ context.Context, id string) (persistence.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return persistence.Tenant{}, persistence.ErrNotFound
	}
	return tenant, nil
}

func (s *Storage) ListTenants(context.Context) ([]persistence.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- UserRepository ---

func (s *Storage) CreateUser(_ context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	if user.TenantID != "" {
		if _, ok := s.tenants[user.TenantID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}
	user.Email = normalizeEmail(user.Email)
	s.users[user.ID] = user
	return nil
}

func (s *Storage) UpdateUser(_ context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}
	user.Email = normalizeEmail(user.Email)
	s.users[user.ID] = user
	return nil
}

func (s *Storage) GetUser(_ context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == lower {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (s *Storage) ensureUniqueEmailLocked(id, email string) error {
	lower := normalizeEmail(email)
	for existingID, user := range s.users {
		if existingID != id && user.Email == lower {
			return persistence.ErrDuplicate
		}
	}
	return nil
}

// --- PolicyRepository ---

func (s *Storage) GetPolicy(_ context.Context, tenantID string) (persistence.BookingPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[tenantID]
	if !ok {
		return persistence.BookingPolicy{}, persistence.ErrNotFound
	}
	return policy, nil
}

func (s *Storage) UpsertPolicy(_ context.Context, policy persistence.BookingPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[policy.TenantID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if policy.AdvanceBookingLimitDays < 0 || policy.CancellationLimitHours < 0 {
		return persistence.ErrConstraintViolation
	}
	if existing, ok := s.policies[policy.TenantID]; ok {
		policy.CreatedAt = existing.CreatedAt
	}
	s.policies[policy.TenantID] = policy
	return nil
}

// --- CatalogRepository ---

func (s *Storage) CreateResourceType(_ context.Context, rt persistence.ResourceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt.ID == "" || strings.TrimSpace(rt.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.resourceTypes[rt.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.tenants[rt.TenantID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.resourceTypes[rt.ID] = rt
	return nil
}

func (s *Storage) GetResourceType(_ context.Context, id string) (persistence.ResourceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.resourceTypes[id]
	if !ok {
		return persistence.ResourceType{}, persistence.ErrNotFound
	}
	return rt, nil
}

func (s *Storage) ListResourceTypes(_ context.Context, tenantID string) ([]persistence.ResourceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.ResourceType, 0)
	for _, rt := range s.resourceTypes {
		if rt.TenantID == tenantID {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Storage) CreateResource(_ context.Context, resource persistence.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[resource.ID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.checkResourceLocked(resource); err != nil {
		return err
	}
	s.resources[resource.ID] = cloneResource(resource)
	return nil
}

func (s *Storage) UpdateResource(_ context.Context, resource persistence.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resources[resource.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if err := s.checkResourceLocked(resource); err != nil {
		return err
	}
	resource.CreatedAt = existing.CreatedAt
	s.resources[resource.ID] = cloneResource(resource)
	return nil
}

func (s *Storage) checkResourceLocked(resource persistence.Resource) error {
	if resource.ID == "" || resource.DurationMinutes < 1 {
		return persistence.ErrConstraintViolation
	}
	rt, ok := s.resourceTypes[resource.TypeID]
	if !ok || rt.TenantID != resource.TenantID {
		return persistence.ErrForeignKeyViolation
	}
	for _, agentID := range resource.AgentIDs {
		agent, ok := s.agents[agentID]
		if !ok || agent.TenantID != resource.TenantID {
			return persistence.ErrForeignKeyViolation
		}
	}
	return nil
}

func (s *Storage) GetResource(_ context.Context, id string) (persistence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resource, ok := s.resources[id]
	if !ok {
		return persistence.Resource{}, persistence.ErrNotFound
	}
	return cloneResource(resource), nil
}

func (s *Storage) ListResources(_ context.Context, tenantID string) ([]persistence.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Resource, 0)
	for _, r := range s.resources {
		if r.TenantID == tenantID {
			out = append(out, cloneResource(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Storage) CreateAgent(_ context.Context, agent persistence.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent.ID == "" || strings.TrimSpace(agent.Name) == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.agents[agent.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.tenants[agent.TenantID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	agent.Email = normalizeEmail(agent.Email)
	for _, existing := range s.agents {
		if agent.Email != "" && existing.TenantID == agent.TenantID && existing.Email == agent.Email {
			return persistence.ErrDuplicate
		}
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *Storage) GetAgent(_ context.Context, id string) (persistence.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return persistence.Agent{}, persistence.ErrNotFound
	}
	return agent, nil
}

func (s *Storage) ListAgents(_ context.Context, tenantID string) ([]persistence.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Agent, 0)
	for _, a := range s.agents {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- AvailabilityRepository ---

func (s *Storage) CreateScheduleEntry(_ context.Context, entry persistence.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.Weekday < 0 || entry.Weekday > 6 || entry.StartSeconds >= entry.EndSeconds {
		return persistence.ErrConstraintViolation
	}
	if err := s.checkTargetLocked(entry.TenantID, entry.ResourceID, entry.AgentID); err != nil {
		return err
	}
	if _, ok := s.schedules[entry.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.schedules {
		if existing.Weekday == entry.Weekday && existing.ResourceID == entry.ResourceID && existing.AgentID == entry.AgentID {
			return persistence.ErrDuplicate
		}
	}
	s.schedules[entry.ID] = entry
	return nil
}

func (s *Storage) GetScheduleEntry(_ context.Context, id string) (persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.schedules[id]
	if !ok {
		return persistence.ScheduleEntry{}, persistence.ErrNotFound
	}
	return entry, nil
}

func (s *Storage) DeleteScheduleEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *Storage) ListScheduleEntries(_ context.Context, filter persistence.TargetFilter) ([]persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.ScheduleEntry, 0)
	for _, e := range s.schedules {
		if matchesTarget(filter, e.TenantID, e.ResourceID, e.AgentID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday == out[j].Weekday {
			return out[i].ID < out[j].ID
		}
		return out[i].Weekday < out[j].Weekday
	})
	return out, nil
}

func (s *Storage) CreateBlockedTime(_ context.Context, blocked persistence.BlockedTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blocked.ID == "" || !blocked.Start.Before(blocked.End) {
		return persistence.ErrConstraintViolation
	}
	if err := s.checkTargetLocked(blocked.TenantID, blocked.ResourceID, blocked.AgentID); err != nil {
		return err
	}
	if _, ok := s.blocked[blocked.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.blocked[blocked.ID] = blocked
	return nil
}

func (s *Storage) GetBlockedTime(_ context.Context, id string) (persistence.BlockedTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocked, ok := s.blocked[id]
	if !ok {
		return persistence.BlockedTime{}, persistence.ErrNotFound
	}
	return blocked, nil
}

func (s *Storage) DeleteBlockedTime(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocked[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.blocked, id)
	return nil
}

func (s *Storage) ListBlockedTimes(_ context.Context, filter persistence.TargetFilter) ([]persistence.BlockedTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.BlockedTime, 0)
	for _, b := range s.blocked {
		if matchesTarget(filter, b.TenantID, b.ResourceID, b.AgentID) && overlapsRange(b.Start, b.End, filter.From, filter.To) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Storage) checkTargetLocked(tenantID, resourceID, agentID string) error {
	switch {
	case resourceID != "" && agentID == "":
		r, ok := s.resources[resourceID]
		if !ok || r.TenantID != tenantID {
			return persistence.ErrForeignKeyViolation
		}
	case agentID != "" && resourceID == "":
		a, ok := s.agents[agentID]
		if !ok || a.TenantID != tenantID {
			return persistence.ErrForeignKeyViolation
		}
	default:
		return persistence.ErrConstraintViolation
	}
	return nil
}

// --- ReservationRepository ---

func (s *Storage) GetReservation(_ context.Context, id string) (persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return persistence.Reservation{}, persistence.ErrNotFound
	}
	return r, nil
}

func (s *Storage) ListReservations(_ context.Context, filter persistence.ReservationFilter) ([]persistence.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.Reservation, 0)
	for _, r := range s.reservations {
		if matchesReservation(filter, r) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

// --- BookingStore ---

func (s *Storage) WithinBookingTx(ctx context.Context, resourceID, agentID string, fn func(tx persistence.BookingTx) error) error {
	unlock, err := s.lockTargets(ctx, resourceID, agentID)
	if err != nil {
		return err
	}
	defer unlock()

	return s.runTx(fn)
}

func (s *Storage) WithinReservationTx(ctx context.Context, reservationID string, fn func(tx persistence.BookingTx, reservation persistence.Reservation) error) error {
	current, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	unlock, err := s.lockTargets(ctx, current.ResourceID, current.AgentID)
	if err != nil {
		return err
	}
	defer unlock()

	// Re-read under the target locks so fn sees the latest status.
	current, err = s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	return s.runTx(func(tx persistence.BookingTx) error {
		return fn(tx, current)
	})
}

func (s *Storage) lockTargets(ctx context.Context, resourceID, agentID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := []string{"resource:" + resourceID}
	if agentID != "" {
		keys = append(keys, "agent:"+agentID)
	}
	for _, k := range keys {
		s.locks.Lock(k)
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			s.locks.Unlock(keys[i])
		}
	}, nil
}

// runTx applies the writes of fn only when it succeeds.
func (s *Storage) runTx(fn func(tx persistence.BookingTx) error) error {
	staged := &stagedTx{s: s, writes: make(map[string]persistence.Reservation)}
	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range staged.writes {
		s.reservations[id] = r
	}
	return nil
}

type stagedTx struct {
	s      *Storage
	writes map[string]persistence.Reservation
}

func (t *stagedTx) lookup(id string) (persistence.Reservation, bool) {
	if r, ok := t.writes[id]; ok {
		return r, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.reservations[id]
	return r, ok
}

func (t *stagedTx) ConfirmedOverlapping(_ context.Context, resourceID, agentID string, start, end time.Time) ([]persistence.Reservation, error) {
	t.s.mu.RLock()
	merged := make(map[string]persistence.Reservation, len(t.s.reservations)+len(t.writes))
	for id, r := range t.s.reservations {
		merged[id] = r
	}
	t.s.mu.RUnlock()
	for id, r := range t.writes {
		merged[id] = r
	}

	out := make([]persistence.Reservation, 0)
	for _, r := range merged {
		if r.Status != "confirmed" {
			continue
		}
		onTarget := r.ResourceID == resourceID || (agentID != "" && r.AgentID == agentID)
		if onTarget && r.Start.Before(end) && r.End.After(start) {
			out = append(out, r)
		}
	}
	sortReservations(out)
	return out, nil
}

func (t *stagedTx) InsertReservation(_ context.Context, r persistence.Reservation) error {
	if r.ID == "" || !r.Start.Before(r.End) {
		return persistence.ErrConstraintViolation
	}
	if _, exists := t.lookup(r.ID); exists {
		return persistence.ErrDuplicate
	}
	t.s.mu.RLock()
	resource, ok := t.s.resources[r.ResourceID]
	_, userOK := t.s.users[r.UserID]
	agentOK := true
	if r.AgentID != "" {
		_, agentOK = t.s.agents[r.AgentID]
	}
	t.s.mu.RUnlock()
	if !ok || !userOK || !agentOK || resource.TenantID != r.TenantID {
		return persistence.ErrForeignKeyViolation
	}
	t.writes[r.ID] = r
	return nil
}

func (t *stagedTx) UpdateReservationStatus(_ context.Context, id, status string, updatedAt time.Time) error {
	r, ok := t.lookup(id)
	if !ok {
		return persistence.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = updatedAt
	t.writes[id] = r
	return nil
}

// --- helpers ---

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneResource(r persistence.Resource) persistence.Resource {
	clone := r
	if r.AgentIDs != nil {
		clone.AgentIDs = append([]string(nil), r.AgentIDs...)
	}
	if r.PriceCents != nil {
		price := *r.PriceCents
		clone.PriceCents = &price
	}
	return clone
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func matchesTarget(filter persistence.TargetFilter, tenantID, resourceID, agentID string) bool {
	if filter.TenantID != "" && filter.TenantID != tenantID {
		return false
	}
	if len(filter.ResourceIDs) == 0 && len(filter.AgentIDs) == 0 {
		return true
	}
	return (resourceID != "" && contains(filter.ResourceIDs, resourceID)) ||
		(agentID != "" && contains(filter.AgentIDs, agentID))
}

func overlapsRange(start, end time.Time, from, to *time.Time) bool {
	if to != nil && !start.Before(*to) {
		return false
	}
	if from != nil && !end.After(*from) {
		return false
	}
	return true
}

func matchesReservation(filter persistence.ReservationFilter, r persistence.Reservation) bool {
	if filter.TenantID != "" && filter.TenantID != r.TenantID {
		return false
	}
	if filter.UserID != "" && filter.UserID != r.UserID {
		return false
	}
	if len(filter.ResourceIDs) > 0 || len(filter.AgentIDs) > 0 {
		onTarget := contains(filter.ResourceIDs, r.ResourceID) || (r.AgentID != "" && contains(filter.AgentIDs, r.AgentID))
		if !onTarget {
			return false
		}
	}
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, r.Status) {
		return false
	}
	if filter.EndsBefore != nil && r.End.After(*filter.EndsBefore) {
		return false
	}
	return overlapsRange(r.Start, r.End, filter.From, filter.To)
}

func sortReservations(out []persistence.Reservation) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic(fmt.Sprintf("memory: unlock of unlocked key %q", key))
	}
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	m.Unlock()
}
