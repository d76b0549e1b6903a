// Package http provides the JSON API handlers and middleware for EventFlow.
//
// Routes use the method and wildcard patterns of net/http.ServeMux:
//   - POST /auth/sign-in issues a session. The token is returned in the body,
//     the `X-Session-Token` header and a `session_token` cookie. sign-up,
//     confirm, refresh and sign-out complete the account lifecycle and
//     GET /auth/session describes the current principal.
//   - /users, /users/{id} and /users/{id}/permissions/... manage accounts, roles
//     and per-user permission overrides. The id "me" names the caller.
//   - /events, /events/{id} and its publish, cancel, duplicate and stats
//     actions manage the catalogue. GET /dashboard returns the overview.
//   - /events/{id}/attendees registers and lists attendees, with a bulk
//     action endpoint. /attendees/{id}/qrcode renders a ticket as PNG.
//   - /events/{id}/check-ins/... handles scans, manual check-in and no-shows.
//     GET /events/{id}/live streams counters and activity as server-sent events.
//   - /event-drafts/{id} buffers wizard drafts for autosave.
//   - /preferences/theme reads and changes the theme settings.
//   - GET /debug/diagnostics is only mounted in development.
//
// Errors are returned as {"error": problem} where problem carries a stable
// code, a title, a message and optional suggestions and field errors.
// List endpoints take filters as query parameters plus sort and order.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
