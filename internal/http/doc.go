// Package http exposes the booking engine over JSON.
//
// The router registers the following endpoints:
//   - POST /sessions: issues a session token. Body: {"email","password"}. Response:
//     {"token","expires_at","principal":{"user_id","tenant_id","is_admin"}}. The
//     token is also set as the `booking_session` cookie.
//   - GET /sessions/current, DELETE /sessions/current: reads the caller's
//     principal or clears the session cookie.
//   - GET|POST /resources/{id}/availability?date=YYYY-MM-DD and
//     GET|POST /agents/{id}/availability?date=YYYY-MM-DD&resource=: public slot
//     previews shaped as {"date","available_slots":[{"start","end"}]}.
//   - GET /resources/{id}/availability/range?from=&to=: one preview per day.
//   - POST /bookings, GET /bookings, GET /bookings/{id},
//     POST /bookings/{id}/cancel, POST /bookings/{id}/confirm: reservations
//     exchanging the `reservationDTO` payload defined in booking_handler.go.
//   - /tenants, /resource-types, /resources, /agents, /schedules,
//     /blocked-times and /settings: tenant administration defined in
//     catalog_handler.go.
//
// Engine rejections answer 400 with {"error": reason}, except a missing
// booking policy which answers 403. Validation failures add a "fields" map.
package http
