package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

// maxDurationMinutes caps a resource slot at one calendar day.
const maxDurationMinutes = 24 * 60

// CatalogStore captures the persistence operations used for tenant administration.
type CatalogStore interface {
	persistence.TenantRepository
	persistence.PolicyRepository
	persistence.CatalogRepository
	persistence.AvailabilityRepository
}

// CatalogService administers tenants, their resources, agents, availability
// and booking policy.
type CatalogService struct {
	store       CatalogStore
	policies    *PolicySource
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCatalogService constructs a catalog service.
func NewCatalogService(store CatalogStore, policies *PolicySource, idGenerator func() string, now func() time.Time, opts ServiceOptions) *CatalogService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogService{
		store:       store,
		policies:    policies,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(opts.Logger),
	}
}

func (s *CatalogService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CatalogService", operation, attrs...)
}

// manageTenant resolves the tenant an administrative call acts on. An empty
// requested id falls back to the principal's own tenant.
func manageTenant(principal Principal, requested string) (string, error) {
	if principal.UserID == "" || !principal.IsAdmin {
		return "", ErrUnauthorized
	}
	tenantID := strings.TrimSpace(requested)
	if tenantID == "" {
		tenantID = principal.TenantID
	}
	if tenantID == "" {
		return "", fieldError("tenant", "tenant is required")
	}
	if !principal.CanManage(tenantID) {
		return "", ErrUnauthorized
	}
	return tenantID, nil
}

// CreateTenant registers a tenant together with the default booking policy.
// Only staff may create tenants.
func (s *CatalogService) CreateTenant(ctx context.Context, principal Principal, name string) (tenant persistence.Tenant, err error) {
	logger := s.loggerWith(ctx, "CreateTenant", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create tenant", "tenant created", "tenant_id", tenant.ID)
	}()

	if !principal.IsStaff() {
		err = ErrUnauthorized
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err = fieldError("name", "name is required")
		return
	}

	now := s.now()
	candidate := persistence.Tenant{ID: s.idGenerator(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err = s.store.CreateTenant(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	defaults := scheduler.DefaultPolicy(candidate.ID)
	if err = s.store.UpsertPolicy(ctx, persistence.BookingPolicy{
		TenantID:                candidate.ID,
		AdvanceBookingLimitDays: defaults.AdvanceBookingLimitDays,
		CancellationLimitHours:  defaults.CancellationLimitHours,
		AutomaticConfirmation:   defaults.AutomaticConfirmation,
		CreatedAt:               now,
		UpdatedAt:               now,
	}); err != nil {
		err = mapRepoError(err)
		return
	}
	s.policies.Invalidate(candidate.ID)
	tenant = candidate
	return
}

// ListTenants returns every tenant for staff and the own tenant for tenant admins.
func (s *CatalogService) ListTenants(ctx context.Context, principal Principal) ([]persistence.Tenant, error) {
	switch {
	case principal.IsStaff():
		tenants, err := s.store.ListTenants(ctx)
		return tenants, mapRepoError(err)
	case principal.CanManage(principal.TenantID):
		tenant, err := s.store.GetTenant(ctx, principal.TenantID)
		if err != nil {
			return nil, mapRepoError(err)
		}
		return []persistence.Tenant{tenant}, nil
	}
	return nil, ErrUnauthorized
}

// CreateResourceType adds a resource type. RequiresAgent defaults to true.
func (s *CatalogService) CreateResourceType(ctx context.Context, principal Principal, input ResourceTypeInput) (rt persistence.ResourceType, err error) {
	logger := s.loggerWith(ctx, "CreateResourceType", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create resource type", "resource type created", "resource_type_id", rt.ID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		err = fieldError("name", "name is required")
		return
	}
	requiresAgent := true
	if input.RequiresAgent != nil {
		requiresAgent = *input.RequiresAgent
	}

	now := s.now()
	candidate := persistence.ResourceType{
		ID:            s.idGenerator(),
		TenantID:      tenantID,
		Name:          name,
		RequiresAgent: requiresAgent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = s.store.CreateResourceType(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	rt = candidate
	return
}

// ListResourceTypes lists the resource types of a tenant.
func (s *CatalogService) ListResourceTypes(ctx context.Context, tenantID string) ([]persistence.ResourceType, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fieldError("tenant", "tenant is required")
	}
	types, err := s.store.ListResourceTypes(ctx, tenantID)
	return types, mapRepoError(err)
}

// CreateResource adds a resource. Name, type and duration are required.
func (s *CatalogService) CreateResource(ctx context.Context, principal Principal, input ResourceInput) (resource persistence.Resource, err error) {
	logger := s.loggerWith(ctx, "CreateResource", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create resource", "resource created", "resource_id", resource.ID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}

	now := s.now()
	candidate := persistence.Resource{
		ID:               s.idGenerator(),
		TenantID:         tenantID,
		Active:           true,
		AvailabilityMode: string(scheduler.ModeSchedule),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	vErr := &ValidationError{}
	if input.TypeID == nil || strings.TrimSpace(*input.TypeID) == "" {
		vErr.add("type", "type is required")
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.DurationMinutes == nil {
		vErr.add("duration", "duration is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.applyResourceInput(ctx, &candidate, input); err != nil {
		return
	}
	if err = s.store.CreateResource(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	resource = candidate
	return
}

// UpdateResource applies the non-nil fields of input to a resource.
func (s *CatalogService) UpdateResource(ctx context.Context, principal Principal, id string, input ResourceInput) (resource persistence.Resource, err error) {
	logger := s.loggerWith(ctx, "UpdateResource", "principal_id", principal.UserID, "resource_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update resource", "resource updated")
	}()

	var current persistence.Resource
	current, err = s.store.GetResource(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if _, err = manageTenant(principal, current.TenantID); err != nil {
		return
	}

	if err = s.applyResourceInput(ctx, &current, input); err != nil {
		return
	}
	current.UpdatedAt = s.now()
	if err = s.store.UpdateResource(ctx, current); err != nil {
		err = mapRepoError(err)
		return
	}
	resource = current
	return
}

func (s *CatalogService) applyResourceInput(ctx context.Context, r *persistence.Resource, input ResourceInput) error {
	vErr := &ValidationError{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			r.Name = name
		} else {
			vErr.add("name", "name must not be empty")
		}
	}
	if input.Description != nil {
		r.Description = strings.TrimSpace(*input.Description)
	}
	if input.DurationMinutes != nil {
		if d := *input.DurationMinutes; d > 0 && d <= maxDurationMinutes {
			r.DurationMinutes = d
		} else {
			vErr.add("duration", fmt.Sprintf("duration must be between 1 and %d minutes", maxDurationMinutes))
		}
	}
	if input.PriceCents != nil {
		if *input.PriceCents >= 0 {
			price := *input.PriceCents
			r.PriceCents = &price
		} else {
			vErr.add("price", "price must not be negative")
		}
	}
	if input.Active != nil {
		r.Active = *input.Active
	}
	if input.AvailabilityMode != nil {
		if mode := scheduler.AvailabilityMode(*input.AvailabilityMode); mode.Valid() {
			r.AvailabilityMode = string(mode)
		} else {
			vErr.add("availability_mode", "availability_mode must be schedule, always or custom")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}

	if input.TypeID != nil {
		rt, err := s.store.GetResourceType(ctx, strings.TrimSpace(*input.TypeID))
		switch {
		case errors.Is(err, persistence.ErrNotFound) || (err == nil && rt.TenantID != r.TenantID):
			vErr.add("type", "unknown resource type")
		case err != nil:
			return err
		default:
			r.TypeID = rt.ID
		}
	}
	if input.AgentIDs != nil {
		ids := make([]string, 0, len(*input.AgentIDs))
		seen := make(map[string]struct{}, len(*input.AgentIDs))
		for _, id := range *input.AgentIDs {
			id = strings.TrimSpace(id)
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			agent, err := s.store.GetAgent(ctx, id)
			if errors.Is(err, persistence.ErrNotFound) || (err == nil && agent.TenantID != r.TenantID) {
				vErr.add("agents", "unknown agent "+id)
				continue
			}
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		r.AgentIDs = ids
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// GetResource returns a resource.
func (s *CatalogService) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	resource, err := s.store.GetResource(ctx, id)
	return resource, mapRepoError(err)
}

// ListResources lists the resources of a tenant. Inactive resources are only
// listed for administrators of the tenant.
func (s *CatalogService) ListResources(ctx context.Context, principal Principal, tenantID string) ([]persistence.Resource, error) {
	if strings.TrimSpace(tenantID) == "" {
		tenantID = principal.TenantID
	}
	if tenantID == "" {
		return nil, fieldError("tenant", "tenant is required")
	}
	resources, err := s.store.ListResources(ctx, tenantID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if principal.CanManage(tenantID) {
		return resources, nil
	}
	active := make([]persistence.Resource, 0, len(resources))
	for _, r := range resources {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

// CreateAgent adds an agent. Email, when given, must be unique per tenant.
func (s *CatalogService) CreateAgent(ctx context.Context, principal Principal, input AgentInput) (agent persistence.Agent, err error) {
	logger := s.loggerWith(ctx, "CreateAgent", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create agent", "agent created", "agent_id", agent.ID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}
	vErr := &ValidationError{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		vErr.add("name", "name is required")
	}
	email := normalizeEmail(input.Email)
	if email != "" {
		if _, parseErr := mail.ParseAddress(email); parseErr != nil {
			vErr.add("email", "email is invalid")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}

	now := s.now()
	candidate := persistence.Agent{
		ID:        s.idGenerator(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.store.CreateAgent(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	agent = candidate
	return
}

// ListAgents lists the agents of a tenant.
func (s *CatalogService) ListAgents(ctx context.Context, principal Principal, tenantID string) ([]persistence.Agent, error) {
	if strings.TrimSpace(tenantID) == "" {
		tenantID = principal.TenantID
	}
	if tenantID == "" {
		return nil, fieldError("tenant", "tenant is required")
	}
	agents, err := s.store.ListAgents(ctx, tenantID)
	return agents, mapRepoError(err)
}

// CreateScheduleEntry opens a resource or an agent on one weekday. A target
// holds at most one entry per weekday.
func (s *CatalogService) CreateScheduleEntry(ctx context.Context, principal Principal, input ScheduleEntryInput) (entry persistence.ScheduleEntry, err error) {
	logger := s.loggerWith(ctx, "CreateScheduleEntry",
		"principal_id", principal.UserID,
		"resource_id", input.ResourceID,
		"agent_id", input.AgentID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create schedule entry", "schedule entry created", "schedule_id", entry.ID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}
	var target scheduler.Target
	if target, err = s.resolveTarget(ctx, tenantID, input.ResourceID, input.AgentID); err != nil {
		return
	}
	candidate := scheduler.ScheduleEntry{Target: target, Weekday: input.Weekday, Start: input.Start, End: input.End}
	if validateErr := candidate.Validate(); validateErr != nil {
		vErr := &ValidationError{}
		if errors.Is(validateErr, recurrence.ErrInvalidWeekday) {
			vErr.add("day_of_week", "day_of_week must be between 0 (Monday) and 6 (Sunday)")
		} else {
			vErr.add("end_time", "end_time must be after start_time")
		}
		err = vErr
		return
	}

	row := persistence.ScheduleEntry{
		ID:           s.idGenerator(),
		TenantID:     tenantID,
		Weekday:      int(input.Weekday),
		StartSeconds: int(input.Start),
		EndSeconds:   int(input.End),
		CreatedAt:    s.now(),
	}
	if target.IsResource() {
		row.ResourceID = target.ID()
	} else {
		row.AgentID = target.ID()
	}
	if err = s.store.CreateScheduleEntry(ctx, row); err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrAlreadyExists) {
			err = fieldError("day_of_week", "a schedule already exists for this day")
		}
		return
	}
	entry = row
	return
}

// ListScheduleEntries lists schedule entries of a tenant, optionally narrowed
// to one resource or agent.
func (s *CatalogService) ListScheduleEntries(ctx context.Context, tenantID, resourceID, agentID string) ([]persistence.ScheduleEntry, error) {
	filter, err := listFilter(tenantID, resourceID, agentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListScheduleEntries(ctx, filter)
	return entries, mapRepoError(err)
}

// DeleteScheduleEntry removes a schedule entry.
func (s *CatalogService) DeleteScheduleEntry(ctx context.Context, principal Principal, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteScheduleEntry", "principal_id", principal.UserID, "schedule_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete schedule entry", "schedule entry deleted")
	}()

	var entry persistence.ScheduleEntry
	if entry, err = s.store.GetScheduleEntry(ctx, id); err != nil {
		err = mapRepoError(err)
		return
	}
	if _, err = manageTenant(principal, entry.TenantID); err != nil {
		return
	}
	err = mapRepoError(s.store.DeleteScheduleEntry(ctx, id))
	return
}

// CreateBlockedTime closes a resource or an agent for an explicit period.
func (s *CatalogService) CreateBlockedTime(ctx context.Context, principal Principal, input BlockedTimeInput) (blocked persistence.BlockedTime, err error) {
	logger := s.loggerWith(ctx, "CreateBlockedTime",
		"principal_id", principal.UserID,
		"resource_id", input.ResourceID,
		"agent_id", input.AgentID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create blocked time", "blocked time created", "blocked_time_id", blocked.ID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}
	vErr := &ValidationError{}
	if input.Start.IsZero() {
		vErr.add("start_datetime", "start_datetime is required")
	}
	if input.End.IsZero() {
		vErr.add("end_datetime", "end_datetime is required")
	}
	if !vErr.HasErrors() && !input.Start.Before(input.End) {
		vErr.add("end_datetime", "end_datetime must be after start_datetime")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	var target scheduler.Target
	if target, err = s.resolveTarget(ctx, tenantID, input.ResourceID, input.AgentID); err != nil {
		return
	}

	row := persistence.BlockedTime{
		ID:        s.idGenerator(),
		TenantID:  tenantID,
		Start:     input.Start.UTC(),
		End:       input.End.UTC(),
		Reason:    strings.TrimSpace(input.Reason),
		CreatedAt: s.now(),
	}
	if target.IsResource() {
		row.ResourceID = target.ID()
	} else {
		row.AgentID = target.ID()
	}
	if err = s.store.CreateBlockedTime(ctx, row); err != nil {
		err = mapRepoError(err)
		return
	}
	blocked = row
	return
}

// ListBlockedTimes lists blocked intervals of a tenant overlapping [from, to).
func (s *CatalogService) ListBlockedTimes(ctx context.Context, tenantID, resourceID, agentID string, from, to *time.Time) ([]persistence.BlockedTime, error) {
	filter, err := listFilter(tenantID, resourceID, agentID)
	if err != nil {
		return nil, err
	}
	filter.From, filter.To = from, to
	blocked, err := s.store.ListBlockedTimes(ctx, filter)
	return blocked, mapRepoError(err)
}

// DeleteBlockedTime removes a blocked interval.
func (s *CatalogService) DeleteBlockedTime(ctx context.Context, principal Principal, id string) (err error) {
	logger := s.loggerWith(ctx, "DeleteBlockedTime", "principal_id", principal.UserID, "blocked_time_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete blocked time", "blocked time deleted")
	}()

	var blocked persistence.BlockedTime
	if blocked, err = s.store.GetBlockedTime(ctx, id); err != nil {
		err = mapRepoError(err)
		return
	}
	if _, err = manageTenant(principal, blocked.TenantID); err != nil {
		return
	}
	err = mapRepoError(s.store.DeleteBlockedTime(ctx, id))
	return
}

// GetPolicy returns the booking policy of a tenant.
func (s *CatalogService) GetPolicy(ctx context.Context, principal Principal, tenantID string) (persistence.BookingPolicy, error) {
	tenantID, err := manageTenant(principal, tenantID)
	if err != nil {
		return persistence.BookingPolicy{}, err
	}
	policy, err := s.store.GetPolicy(ctx, tenantID)
	return policy, mapRepoError(err)
}

// UpdatePolicy replaces the booking policy of a tenant and drops its cached copy.
func (s *CatalogService) UpdatePolicy(ctx context.Context, principal Principal, input PolicyInput) (policy persistence.BookingPolicy, err error) {
	logger := s.loggerWith(ctx, "UpdatePolicy", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update policy", "policy updated", "tenant_id", policy.TenantID)
	}()

	var tenantID string
	if tenantID, err = manageTenant(principal, input.TenantID); err != nil {
		return
	}
	vErr := &ValidationError{}
	if input.AdvanceBookingLimitDays < 0 {
		vErr.add("advance_booking_limit", "advance_booking_limit must not be negative")
	}
	if input.CancellationLimitHours < 0 {
		vErr.add("cancellation_limit_hours", "cancellation_limit_hours must not be negative")
	}
	email := normalizeEmail(input.NotificationEmail)
	if email != "" {
		if _, parseErr := mail.ParseAddress(email); parseErr != nil {
			vErr.add("notification_email", "notification_email is invalid")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if _, err = s.store.GetTenant(ctx, tenantID); err != nil {
		err = mapRepoError(err)
		return
	}

	now := s.now()
	candidate := persistence.BookingPolicy{
		TenantID:                tenantID,
		AdvanceBookingLimitDays: input.AdvanceBookingLimitDays,
		CancellationLimitHours:  input.CancellationLimitHours,
		AutomaticConfirmation:   input.AutomaticConfirmation,
		NotificationEmail:       email,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if existing, getErr := s.store.GetPolicy(ctx, tenantID); getErr == nil {
		candidate.CreatedAt = existing.CreatedAt
	}
	if err = s.store.UpsertPolicy(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	s.policies.Invalidate(tenantID)
	policy = candidate
	return
}

// resolveTarget checks that exactly one of resourceID and agentID is set and
// that it belongs to tenantID.
func (s *CatalogService) resolveTarget(ctx context.Context, tenantID, resourceID, agentID string) (scheduler.Target, error) {
	resourceID, agentID = strings.TrimSpace(resourceID), strings.TrimSpace(agentID)
	target, err := scheduler.TargetFromRefs(resourceID, agentID)
	if err != nil {
		return scheduler.Target{}, fieldError("target", "exactly one of resource and agent is required")
	}

	var owner string
	if target.IsResource() {
		resource, getErr := s.store.GetResource(ctx, resourceID)
		err, owner = getErr, resource.TenantID
	} else {
		agent, getErr := s.store.GetAgent(ctx, agentID)
		err, owner = getErr, agent.TenantID
	}
	if errors.Is(err, persistence.ErrNotFound) || (err == nil && owner != tenantID) {
		return scheduler.Target{}, fieldError(string(target.Kind()), "unknown "+string(target.Kind()))
	}
	if err != nil {
		return scheduler.Target{}, err
	}
	return target, nil
}

func listFilter(tenantID, resourceID, agentID string) (persistence.TargetFilter, error) {
	filter := persistence.TargetFilter{TenantID: strings.TrimSpace(tenantID)}
	if resourceID = strings.TrimSpace(resourceID); resourceID != "" {
		filter.ResourceIDs = []string{resourceID}
	}
	if agentID = strings.TrimSpace(agentID); agentID != "" {
		filter.AgentIDs = []string{agentID}
	}
	if filter.TenantID == "" && len(filter.ResourceIDs) == 0 && len(filter.AgentIDs) == 0 {
		return filter, fieldError("tenant", "tenant, resource or agent is required")
	}
	return filter, nil
}
