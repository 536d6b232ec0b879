package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/recurrence"
	"github.com/example/booking-engine/internal/scheduler"
)

type availabilityService interface {
	ResourceSlots(ctx context.Context, resourceID string, date recurrence.Date) (application.DaySlots, error)
	AgentSlots(ctx context.Context, agentID, resourceID string, date recurrence.Date) (application.DaySlots, error)
	ResourceRange(ctx context.Context, resourceID string, from, to recurrence.Date) ([]application.DaySlots, error)
}

// AvailabilityHandler serves free slot previews.
type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

// NewAvailabilityHandler builds an AvailabilityHandler.
func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

// Resource handles GET|POST /resources/{id}/availability?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Resource(w http.ResponseWriter, r *http.Request) {
	date, err := requiredDate(r, "date")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	day, err := h.service.ResourceSlots(r.Context(), r.PathValue("id"), date)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "AvailabilityHandler", "Resource").
			DebugContext(r.Context(), "slot preview refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDaySlotsDTO(day))
}

// Agent handles GET|POST /agents/{id}/availability?date=YYYY-MM-DD&resource=.
func (h *AvailabilityHandler) Agent(w http.ResponseWriter, r *http.Request) {
	date, err := requiredDate(r, "date")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	day, err := h.service.AgentSlots(r.Context(), r.PathValue("id"), strings.TrimSpace(r.URL.Query().Get("resource")), date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toDaySlotsDTO(day))
}

// Range handles GET /resources/{id}/availability/range?from=&to=.
func (h *AvailabilityHandler) Range(w http.ResponseWriter, r *http.Request) {
	from, err := requiredDate(r, "from")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	to, err := requiredDate(r, "to")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	days, err := h.service.ResourceRange(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]daySlotsDTO, 0, len(days))
	for _, day := range days {
		out = append(out, toDaySlotsDTO(day))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rangeResponse{Resource: r.PathValue("id"), Days: out})
}

func requiredDate(r *http.Request, param string) (recurrence.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(param))
	if raw == "" {
		return recurrence.Date{}, &application.ValidationError{FieldErrors: map[string]string{param: param + " is required"}}
	}
	date, err := recurrence.ParseDate(raw)
	if err != nil {
		return recurrence.Date{}, &application.ValidationError{FieldErrors: map[string]string{param: param + " must be YYYY-MM-DD"}}
	}
	return date, nil
}

type slotDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type daySlotsDTO struct {
	Date           recurrence.Date `json:"date"`
	AvailableSlots []slotDTO       `json:"available_slots"`
}

type rangeResponse struct {
	Resource string        `json:"resource"`
	Days     []daySlotsDTO `json:"days"`
}

func toDaySlotsDTO(day application.DaySlots) daySlotsDTO {
	slots := make([]slotDTO, 0, len(day.Slots))
	for _, s := range day.Slots {
		slots = append(slots, toSlotDTO(s))
	}
	return daySlotsDTO{Date: day.Date, AvailableSlots: slots}
}

func toSlotDTO(s scheduler.Interval) slotDTO {
	return slotDTO{Start: s.Start.Format(time.RFC3339), End: s.End.Format(time.RFC3339)}
}
