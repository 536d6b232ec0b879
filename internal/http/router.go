package http

import (
	"log/slog"
	"net/http"
)

// RouterConfig wires handlers into the API. Nil handlers leave their routes
// unregistered.
type RouterConfig struct {
	Auth         *AuthHandler
	Bookings     *BookingHandler
	Availability *AvailabilityHandler
	Catalog      *CatalogHandler
	Sessions     SessionValidator
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

// NewRouter builds the API handler. Availability previews and login are
// public; every other route requires a session.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	logger := defaultLogger(cfg.Logger)

	authed := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.Sessions != nil {
		requireSession := RequireSession(cfg.Sessions, logger)
		authed = func(h http.HandlerFunc) http.Handler { return requireSession(h) }
	}

	if cfg.Auth != nil {
		mux.HandleFunc("POST /sessions", cfg.Auth.CreateSession)
		mux.Handle("GET /sessions/current", authed(cfg.Auth.CurrentSession))
		mux.Handle("DELETE /sessions/current", authed(cfg.Auth.DeleteCurrentSession))
	}

	if cfg.Availability != nil {
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			mux.HandleFunc(method+" /resources/{id}/availability", cfg.Availability.Resource)
			mux.HandleFunc(method+" /agents/{id}/availability", cfg.Availability.Agent)
		}
		mux.HandleFunc("GET /resources/{id}/availability/range", cfg.Availability.Range)
	}

	if cfg.Bookings != nil {
		mux.Handle("POST /bookings", authed(cfg.Bookings.Create))
		mux.Handle("GET /bookings", authed(cfg.Bookings.List))
		mux.Handle("GET /bookings/{id}", authed(cfg.Bookings.Get))
		mux.Handle("POST /bookings/{id}/cancel", authed(cfg.Bookings.Cancel))
		mux.Handle("POST /bookings/{id}/confirm", authed(cfg.Bookings.Confirm))
	}

	if c := cfg.Catalog; c != nil {
		mux.Handle("POST /tenants", authed(c.CreateTenant))
		mux.Handle("GET /tenants", authed(c.ListTenants))

		mux.Handle("POST /resource-types", authed(c.CreateResourceType))
		mux.Handle("GET /resource-types", authed(c.ListResourceTypes))

		mux.Handle("POST /resources", authed(c.CreateResource))
		mux.Handle("GET /resources", authed(c.ListResources))
		mux.Handle("GET /resources/{id}", authed(c.GetResource))
		mux.Handle("PATCH /resources/{id}", authed(c.UpdateResource))

		mux.Handle("POST /agents", authed(c.CreateAgent))
		mux.Handle("GET /agents", authed(c.ListAgents))

		mux.Handle("POST /schedules", authed(c.CreateSchedule))
		mux.Handle("GET /schedules", authed(c.ListSchedules))
		mux.Handle("DELETE /schedules/{id}", authed(c.DeleteSchedule))

		mux.Handle("POST /blocked-times", authed(c.CreateBlockedTime))
		mux.Handle("GET /blocked-times", authed(c.ListBlockedTimes))
		mux.Handle("DELETE /blocked-times/{id}", authed(c.DeleteBlockedTime))

		mux.Handle("GET /settings", authed(c.GetSettings))
		mux.Handle("PUT /settings", authed(c.UpdateSettings))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return RequestLogger(logger)(handler)
}
