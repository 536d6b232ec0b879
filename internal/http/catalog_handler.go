package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/recurrence"
)

type catalogService interface {
	CreateTenant(ctx context.Context, principal application.Principal, name string) (persistence.Tenant, error)
	ListTenants(ctx context.Context, principal application.Principal) ([]persistence.Tenant, error)

	CreateResourceType(ctx context.Context, principal application.Principal, input application.ResourceTypeInput) (persistence.ResourceType, error)
	ListResourceTypes(ctx context.Context, tenantID string) ([]persistence.ResourceType, error)

	CreateResource(ctx context.Context, principal application.Principal, input application.ResourceInput) (persistence.Resource, error)
	UpdateResource(ctx context.Context, principal application.Principal, id string, input application.ResourceInput) (persistence.Resource, error)
	GetResource(ctx context.Context, id string) (persistence.Resource, error)
	ListResources(ctx context.Context, principal application.Principal, tenantID string) ([]persistence.Resource, error)

	CreateAgent(ctx context.Context, principal application.Principal, input application.AgentInput) (persistence.Agent, error)
	ListAgents(ctx context.Context, principal application.Principal, tenantID string) ([]persistence.Agent, error)

	CreateScheduleEntry(ctx context.Context, principal application.Principal, input application.ScheduleEntryInput) (persistence.ScheduleEntry, error)
	ListScheduleEntries(ctx context.Context, tenantID, resourceID, agentID string) ([]persistence.ScheduleEntry, error)
	DeleteScheduleEntry(ctx context.Context, principal application.Principal, id string) error

	CreateBlockedTime(ctx context.Context, principal application.Principal, input application.BlockedTimeInput) (persistence.BlockedTime, error)
	ListBlockedTimes(ctx context.Context, tenantID, resourceID, agentID string, from, to *time.Time) ([]persistence.BlockedTime, error)
	DeleteBlockedTime(ctx context.Context, principal application.Principal, id string) error

	GetPolicy(ctx context.Context, principal application.Principal, tenantID string) (persistence.BookingPolicy, error)
	UpdatePolicy(ctx context.Context, principal application.Principal, input application.PolicyInput) (persistence.BookingPolicy, error)
}

// CatalogHandler serves tenant administration endpoints.
type CatalogHandler struct {
	service   catalogService
	responder responder
	logger    *slog.Logger
}

// NewCatalogHandler builds a CatalogHandler.
func NewCatalogHandler(service catalogService, logger *slog.Logger) *CatalogHandler {
	base := defaultLogger(logger)
	return &CatalogHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CatalogHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CatalogHandler", operation, attrs...)
}

// created writes a 201 response or maps err.
func (h *CatalogHandler) created(w http.ResponseWriter, r *http.Request, operation string, payload any, err error) {
	h.respond(w, r, operation, http.StatusCreated, payload, err)
}

func (h *CatalogHandler) respond(w http.ResponseWriter, r *http.Request, operation string, status int, payload any, err error) {
	if err != nil {
		h.log(r.Context(), operation).WarnContext(r.Context(), "catalog request refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, status, payload)
}

// tenantParam returns ?tenant= or the caller's own tenant.
func tenantParam(r *http.Request, principal application.Principal) string {
	if tenant := strings.TrimSpace(r.URL.Query().Get("tenant")); tenant != "" {
		return tenant
	}
	return principal.TenantID
}

// ------------------------------- Tenants ---------------------------------

// CreateTenant handles POST /tenants.
func (h *CatalogHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req tenantRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	tenant, err := h.service.CreateTenant(r.Context(), principal, req.Name)
	h.created(w, r, "CreateTenant", toTenantDTO(tenant), err)
}

// ListTenants handles GET /tenants.
func (h *CatalogHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	tenants, err := h.service.ListTenants(r.Context(), principal)
	out := make([]tenantDTO, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toTenantDTO(t))
	}
	h.respond(w, r, "ListTenants", http.StatusOK, map[string]any{"tenants": out}, err)
}

// ---------------------------- Resource types -----------------------------

// CreateResourceType handles POST /resource-types.
func (h *CatalogHandler) CreateResourceType(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req resourceTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	rt, err := h.service.CreateResourceType(r.Context(), principal, application.ResourceTypeInput{
		TenantID:      req.TenantID,
		Name:          req.Name,
		RequiresAgent: req.RequiresAgent,
	})
	h.created(w, r, "CreateResourceType", toResourceTypeDTO(rt), err)
}

// ListResourceTypes handles GET /resource-types?tenant=.
func (h *CatalogHandler) ListResourceTypes(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	types, err := h.service.ListResourceTypes(r.Context(), tenantParam(r, principal))
	out := make([]resourceTypeDTO, 0, len(types))
	for _, rt := range types {
		out = append(out, toResourceTypeDTO(rt))
	}
	h.respond(w, r, "ListResourceTypes", http.StatusOK, map[string]any{"resource_types": out}, err)
}

// ------------------------------- Resources -------------------------------

// CreateResource handles POST /resources.
func (h *CatalogHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	resource, err := h.service.CreateResource(r.Context(), principal, req.toInput())
	h.created(w, r, "CreateResource", toResourceDTO(resource), err)
}

// UpdateResource handles PATCH /resources/{id}.
func (h *CatalogHandler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req resourceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	resource, err := h.service.UpdateResource(r.Context(), principal, r.PathValue("id"), req.toInput())
	h.respond(w, r, "UpdateResource", http.StatusOK, toResourceDTO(resource), err)
}

// GetResource handles GET /resources/{id}. Inactive resources are hidden from
// callers that cannot manage the tenant.
func (h *CatalogHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	resource, err := h.service.GetResource(r.Context(), r.PathValue("id"))
	if err == nil && !resource.Active && !principal.CanManage(resource.TenantID) {
		err = application.ErrNotFound
	}
	h.respond(w, r, "GetResource", http.StatusOK, toResourceDTO(resource), err)
}

// ListResources handles GET /resources?tenant=.
func (h *CatalogHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	resources, err := h.service.ListResources(r.Context(), principal, tenantParam(r, principal))
	out := make([]resourceDTO, 0, len(resources))
	for _, res := range resources {
		out = append(out, toResourceDTO(res))
	}
	h.respond(w, r, "ListResources", http.StatusOK, map[string]any{"resources": out}, err)
}

// -------------------------------- Agents ---------------------------------

// CreateAgent handles POST /agents.
func (h *CatalogHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	agent, err := h.service.CreateAgent(r.Context(), principal, application.AgentInput{
		TenantID: req.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Active:   req.Active,
	})
	h.created(w, r, "CreateAgent", toAgentDTO(agent), err)
}

// ListAgents handles GET /agents?tenant=.
func (h *CatalogHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	agents, err := h.service.ListAgents(r.Context(), principal, tenantParam(r, principal))
	out := make([]agentDTO, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentDTO(a))
	}
	h.respond(w, r, "ListAgents", http.StatusOK, map[string]any{"agents": out}, err)
}

// ------------------------------- Schedules -------------------------------

// CreateSchedule handles POST /schedules.
func (h *CatalogHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	entry, err := h.service.CreateScheduleEntry(r.Context(), principal, input)
	h.created(w, r, "CreateSchedule", toScheduleDTO(entry), err)
}

// ListSchedules handles GET /schedules?tenant=&resource=&agent=.
func (h *CatalogHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	entries, err := h.service.ListScheduleEntries(r.Context(), tenantParam(r, principal), query.Get("resource"), query.Get("agent"))
	out := make([]scheduleDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toScheduleDTO(e))
	}
	h.respond(w, r, "ListSchedules", http.StatusOK, map[string]any{"schedules": out}, err)
}

// DeleteSchedule handles DELETE /schedules/{id}.
func (h *CatalogHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	err := h.service.DeleteScheduleEntry(r.Context(), principal, r.PathValue("id"))
	h.respond(w, r, "DeleteSchedule", http.StatusNoContent, nil, err)
}

// ----------------------------- Blocked times -----------------------------

// CreateBlockedTime handles POST /blocked-times.
func (h *CatalogHandler) CreateBlockedTime(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req blockedTimeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	blocked, err := h.service.CreateBlockedTime(r.Context(), principal, application.BlockedTimeInput{
		TenantID:   req.TenantID,
		ResourceID: req.Resource,
		AgentID:    req.Agent,
		Start:      req.StartDatetime,
		End:        req.EndDatetime,
		Reason:     req.Reason,
	})
	h.created(w, r, "CreateBlockedTime", toBlockedTimeDTO(blocked), err)
}

// ListBlockedTimes handles GET /blocked-times?tenant=&resource=&agent=&from=&to=.
func (h *CatalogHandler) ListBlockedTimes(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	vErr := &application.ValidationError{}
	from := parseTimeParam(query.Get("from"), "from", vErr)
	to := parseTimeParam(query.Get("to"), "to", vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}
	blocked, err := h.service.ListBlockedTimes(r.Context(), tenantParam(r, principal), query.Get("resource"), query.Get("agent"), from, to)
	out := make([]blockedTimeDTO, 0, len(blocked))
	for _, b := range blocked {
		out = append(out, toBlockedTimeDTO(b))
	}
	h.respond(w, r, "ListBlockedTimes", http.StatusOK, map[string]any{"blocked_times": out}, err)
}

// DeleteBlockedTime handles DELETE /blocked-times/{id}.
func (h *CatalogHandler) DeleteBlockedTime(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	err := h.service.DeleteBlockedTime(r.Context(), principal, r.PathValue("id"))
	h.respond(w, r, "DeleteBlockedTime", http.StatusNoContent, nil, err)
}

// ------------------------------- Settings --------------------------------

// GetSettings handles GET /settings?tenant=.
func (h *CatalogHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	policy, err := h.service.GetPolicy(r.Context(), principal, strings.TrimSpace(r.URL.Query().Get("tenant")))
	h.respond(w, r, "GetSettings", http.StatusOK, toSettingsDTO(policy), err)
}

// UpdateSettings handles PUT /settings.
func (h *CatalogHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}
	policy, err := h.service.UpdatePolicy(r.Context(), principal, application.PolicyInput{
		TenantID:                req.TenantID,
		AdvanceBookingLimitDays: *req.AdvanceBookingLimit,
		CancellationLimitHours:  *req.CancellationLimitHours,
		AutomaticConfirmation:   req.AutomaticConfirmation,
		NotificationEmail:       req.NotificationEmail,
	})
	h.respond(w, r, "UpdateSettings", http.StatusOK, toSettingsDTO(policy), err)
}

// --------------------------------- DTOs ----------------------------------

type tenantRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type tenantDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toTenantDTO(t persistence.Tenant) tenantDTO {
	return tenantDTO{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

type resourceTypeRequest struct {
	TenantID      string `json:"tenant_id"`
	Name          string `json:"name" validate:"required,max=200"`
	RequiresAgent *bool  `json:"requires_agent"`
}

type resourceTypeDTO struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	Name          string `json:"name"`
	RequiresAgent bool   `json:"requires_agent"`
}

func toResourceTypeDTO(rt persistence.ResourceType) resourceTypeDTO {
	return resourceTypeDTO{ID: rt.ID, TenantID: rt.TenantID, Name: rt.Name, RequiresAgent: rt.RequiresAgent}
}

// resourceRequest serves both create and PATCH; absent fields stay nil.
type resourceRequest struct {
	TenantID         string    `json:"tenant_id"`
	TypeID           *string   `json:"type_id"`
	Name             *string   `json:"name" validate:"omitempty,max=200"`
	Description      *string   `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes  *int      `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	PriceCents       *int64    `json:"price_cents" validate:"omitempty,gte=0"`
	Active           *bool     `json:"active"`
	AvailabilityMode *string   `json:"availability_mode" validate:"omitempty,oneof=schedule always custom"`
	AgentIDs         *[]string `json:"agent_ids"`
}

func (req resourceRequest) toInput() application.ResourceInput {
	return application.ResourceInput{
		TenantID:         req.TenantID,
		TypeID:           req.TypeID,
		Name:             req.Name,
		Description:      req.Description,
		DurationMinutes:  req.DurationMinutes,
		PriceCents:       req.PriceCents,
		Active:           req.Active,
		AvailabilityMode: req.AvailabilityMode,
		AgentIDs:         req.AgentIDs,
	}
}

type resourceDTO struct {
	ID               string   `json:"id"`
	TenantID         string   `json:"tenant_id"`
	TypeID           string   `json:"type_id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	DurationMinutes  int      `json:"duration_minutes"`
	PriceCents       *int64   `json:"price_cents,omitempty"`
	Active           bool     `json:"active"`
	AvailabilityMode string   `json:"availability_mode"`
	AgentIDs         []string `json:"agent_ids"`
}

func toResourceDTO(r persistence.Resource) resourceDTO {
	agents := r.AgentIDs
	if agents == nil {
		agents = []string{}
	}
	return resourceDTO{
		ID:               r.ID,
		TenantID:         r.TenantID,
		TypeID:           r.TypeID,
		Name:             r.Name,
		Description:      r.Description,
		DurationMinutes:  r.DurationMinutes,
		PriceCents:       r.PriceCents,
		Active:           r.Active,
		AvailabilityMode: r.AvailabilityMode,
		AgentIDs:         agents,
	}
}

type agentRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Active   *bool  `json:"active"`
}

type agentDTO struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Active   bool   `json:"active"`
}

func toAgentDTO(a persistence.Agent) agentDTO {
	return agentDTO{ID: a.ID, TenantID: a.TenantID, Name: a.Name, Email: a.Email, Active: a.Active}
}

type scheduleRequest struct {
	TenantID  string `json:"tenant_id"`
	Resource  string `json:"resource"`
	Agent     string `json:"agent"`
	DayOfWeek *int   `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

func (req scheduleRequest) toInput() (application.ScheduleEntryInput, error) {
	vErr := &application.ValidationError{}
	start, err := recurrence.ParseTimeOfDay(req.StartTime)
	if err != nil {
		addFieldError(vErr, "start_time", "start_time must be HH:MM")
	}
	end, err := recurrence.ParseTimeOfDay(req.EndTime)
	if err != nil {
		addFieldError(vErr, "end_time", "end_time must be HH:MM")
	}
	if vErr.HasErrors() {
		return application.ScheduleEntryInput{}, vErr
	}
	return application.ScheduleEntryInput{
		TenantID:   req.TenantID,
		ResourceID: req.Resource,
		AgentID:    req.Agent,
		Weekday:    recurrence.Weekday(*req.DayOfWeek),
		Start:      start,
		End:        end,
	}, nil
}

type scheduleDTO struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Resource  string `json:"resource,omitempty"`
	Agent     string `json:"agent,omitempty"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func toScheduleDTO(e persistence.ScheduleEntry) scheduleDTO {
	return scheduleDTO{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Resource:  e.ResourceID,
		Agent:     e.AgentID,
		DayOfWeek: e.Weekday,
		StartTime: recurrence.TimeOfDay(e.StartSeconds).String(),
		EndTime:   recurrence.TimeOfDay(e.EndSeconds).String(),
	}
}

type blockedTimeRequest struct {
	TenantID      string    `json:"tenant_id"`
	Resource      string    `json:"resource"`
	Agent         string    `json:"agent"`
	StartDatetime time.Time `json:"start_datetime" validate:"required"`
	EndDatetime   time.Time `json:"end_datetime" validate:"required"`
	Reason        string    `json:"reason" validate:"max=500"`
}

type blockedTimeDTO struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Resource      string    `json:"resource,omitempty"`
	Agent         string    `json:"agent,omitempty"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Reason        string    `json:"reason,omitempty"`
}

func toBlockedTimeDTO(b persistence.BlockedTime) blockedTimeDTO {
	return blockedTimeDTO{
		ID:            b.ID,
		TenantID:      b.TenantID,
		Resource:      b.ResourceID,
		Agent:         b.AgentID,
		StartDatetime: b.Start,
		EndDatetime:   b.End,
		Reason:        b.Reason,
	}
}

type settingsRequest struct {
	TenantID               string `json:"tenant_id"`
	AdvanceBookingLimit    *int   `json:"advance_booking_limit" validate:"required"`
	CancellationLimitHours *int   `json:"cancellation_limit_hours" validate:"required"`
	AutomaticConfirmation  bool   `json:"automatic_confirmation"`
	NotificationEmail      string `json:"notification_email"`
}

type settingsDTO struct {
	TenantID               string `json:"tenant_id"`
	AdvanceBookingLimit    int    `json:"advance_booking_limit"`
	CancellationLimitHours int    `json:"cancellation_limit_hours"`
	AutomaticConfirmation  bool   `json:"automatic_confirmation"`
	NotificationEmail      string `json:"notification_email,omitempty"`
}

func toSettingsDTO(p persistence.BookingPolicy) settingsDTO {
	return settingsDTO{
		TenantID:               p.TenantID,
		AdvanceBookingLimit:    p.AdvanceBookingLimitDays,
		CancellationLimitHours: p.CancellationLimitHours,
		AutomaticConfirmation:  p.AutomaticConfirmation,
		NotificationEmail:      p.NotificationEmail,
	}
}
