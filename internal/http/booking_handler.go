package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/booking-engine/internal/application"
	"github.com/example/booking-engine/internal/persistence"
	"github.com/example/booking-engine/internal/scheduler"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (persistence.Reservation, error)
	CancelBooking(ctx context.Context, principal application.Principal, reservationID string) (persistence.Reservation, error)
	ConfirmBooking(ctx context.Context, principal application.Principal, reservationID string) (persistence.Reservation, error)
	GetBooking(ctx context.Context, principal application.Principal, reservationID string) (persistence.Reservation, error)
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]persistence.Reservation, error)
}

// BookingHandler serves the reservation endpoints.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

// NewBookingHandler builds a BookingHandler.
func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req bookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.handleDecodeError(r.Context(), w, err)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "resource_id", req.Resource)

	booking, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{
		Principal:  principal,
		ResourceID: req.Resource,
		AgentID:    req.Agent,
		Start:      req.StartDatetime,
		End:        req.EndDatetime,
		Notes:      req.Notes,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "booking refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking created", "booking_id", booking.ID, "status", booking.Status)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toReservationDTO(booking))
}

// List handles GET /bookings?resource=&status=&from=&to=.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	params := application.ListBookingsParams{
		Principal:  principal,
		ResourceID: strings.TrimSpace(query.Get("resource")),
	}
	vErr := &application.ValidationError{}
	for _, raw := range query["status"] {
		for _, s := range strings.Split(raw, ",") {
			status := scheduler.ReservationStatus(strings.TrimSpace(s))
			if !status.Valid() {
				addFieldError(vErr, "status", "unknown status "+string(status))
				continue
			}
			params.Statuses = append(params.Statuses, status)
		}
	}
	params.From = parseTimeParam(query.Get("from"), "from", vErr)
	params.To = parseTimeParam(query.Get("to"), "to", vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]reservationDTO, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toReservationDTO(b))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingsResponse{Bookings: out})
}

// Get handles GET /bookings/{id}.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	booking, err := h.service.GetBooking(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(booking))
}

// Cancel handles POST /bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Cancel", h.service.CancelBooking)
}

// Confirm handles POST /bookings/{id}/confirm.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Confirm", h.service.ConfirmBooking)
}

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, operation string,
	fn func(context.Context, application.Principal, string) (persistence.Reservation, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	id := r.PathValue("id")
	logger := h.log(r.Context(), operation, "principal_id", principal.UserID, "booking_id", id)

	booking, err := fn(r.Context(), principal, id)
	if err != nil {
		logger.WarnContext(r.Context(), "transition refused", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking transitioned", "status", booking.Status)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(booking))
}

type bookingRequest struct {
	Resource      string    `json:"resource" validate:"required"`
	Agent         string    `json:"agent"`
	StartDatetime time.Time `json:"start_datetime" validate:"required"`
	EndDatetime   time.Time `json:"end_datetime" validate:"required"`
	Notes         string    `json:"notes" validate:"max=2000"`
}

type reservationDTO struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	UserID        string    `json:"user_id"`
	Resource      string    `json:"resource"`
	Agent         string    `json:"agent,omitempty"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type bookingsResponse struct {
	Bookings []reservationDTO `json:"bookings"`
}

func toReservationDTO(r persistence.Reservation) reservationDTO {
	return reservationDTO{
		ID:            r.ID,
		TenantID:      r.TenantID,
		UserID:        r.UserID,
		Resource:      r.ResourceID,
		Agent:         r.AgentID,
		StartDatetime: r.Start,
		EndDatetime:   r.End,
		Status:        r.Status,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// parseTimeParam parses an optional RFC 3339 query value.
func parseTimeParam(raw, field string, vErr *application.ValidationError) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		addFieldError(vErr, field, field+" must be an RFC 3339 timestamp")
		return nil
	}
	return &t
}
