package http

import (
	"net/http"
)

type RouterConfig struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Events      *EventHandler
	Attendees   *AttendeeHandler
	CheckIns    *CheckInHandler
	Drafts      *DraftHandler
	Preferences *PreferenceHandler
	Diagnostics *DiagnosticsHandler
	// Session guards every route except the public auth endpoints and
	// diagnostics. Usually RequireSession.
	Session func(http.Handler) http.Handler
	// Development mounts the diagnostics endpoint.
	Development bool
	Middleware  []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	session := cfg.Session
	if session == nil {
		session = func(next http.Handler) http.Handler { return next }
	}
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, session(fn))
	}

	if cfg.Auth != nil {
		mux.HandleFunc("POST /auth/sign-in", cfg.Auth.SignIn)
		mux.HandleFunc("POST /auth/sign-up", cfg.Auth.SignUp)
		mux.HandleFunc("POST /auth/confirm", cfg.Auth.Confirm)
		mux.HandleFunc("POST /auth/refresh", cfg.Auth.Refresh)
		mux.HandleFunc("POST /auth/sign-out", cfg.Auth.SignOut)
		protected("GET /auth/session", cfg.Auth.Session)
	}

	if cfg.Users != nil {
		protected("GET /users", cfg.Users.List)
		protected("PATCH /users/me", cfg.Users.UpdateProfile)
		protected("GET /users/{id}", cfg.Users.Get)
		protected("PUT /users/{id}/role", cfg.Users.ChangeRole)
		protected("PUT /users/{id}/active", cfg.Users.SetActive)
		protected("GET /users/{id}/permissions", cfg.Users.Permissions)
		protected("PUT /users/{id}/permissions/{permission}", cfg.Users.Grant)
		protected("POST /users/{id}/permissions/{permission}/deny", cfg.Users.Deny)
		protected("DELETE /users/{id}/permissions/{permission}", cfg.Users.Revoke)
	}

	if cfg.Events != nil {
		protected("GET /events", cfg.Events.List)
		protected("POST /events", cfg.Events.Create)
		protected("GET /events/{id}", cfg.Events.Get)
		protected("PUT /events/{id}", cfg.Events.Update)
		protected("DELETE /events/{id}", cfg.Events.Delete)
		protected("POST /events/{id}/publish", cfg.Events.Publish)
		protected("POST /events/{id}/cancel", cfg.Events.Cancel)
		protected("POST /events/{id}/duplicate", cfg.Events.Duplicate)
		protected("GET /events/{id}/stats", cfg.Events.Stats)
		protected("GET /dashboard", cfg.Events.Dashboard)
	}

	if cfg.Attendees != nil {
		protected("GET /events/{id}/attendees", cfg.Attendees.List)
		protected("POST /events/{id}/attendees", cfg.Attendees.Register)
		protected("POST /events/{id}/attendees/bulk", cfg.Attendees.Bulk)
		protected("GET /attendees/{id}", cfg.Attendees.Get)
		protected("GET /attendees/{id}/qrcode", cfg.Attendees.QRCode)
	}

	if cfg.CheckIns != nil {
		protected("POST /events/{id}/check-ins/scan", cfg.CheckIns.Scan)
		protected("POST /events/{id}/check-ins/manual", cfg.CheckIns.Manual)
		protected("POST /events/{id}/check-ins/no-shows", cfg.CheckIns.NoShows)
		protected("GET /events/{id}/check-ins/recent", cfg.CheckIns.Recent)
		protected("GET /events/{id}/live", cfg.CheckIns.Live)
	}

	if cfg.Drafts != nil {
		protected("GET /event-drafts/{id}", cfg.Drafts.Get)
		protected("PUT /event-drafts/{id}", cfg.Drafts.Put)
		protected("DELETE /event-drafts/{id}", cfg.Drafts.Delete)
		protected("POST /event-drafts/{id}/save", cfg.Drafts.Save)
		protected("POST /event-drafts/{id}/submit", cfg.Drafts.Submit)
	}

	if cfg.Preferences != nil {
		protected("GET /preferences/theme", cfg.Preferences.Get)
		protected("PUT /preferences/theme", cfg.Preferences.Update)
		protected("DELETE /preferences/theme", cfg.Preferences.Reset)
	}

	if cfg.Diagnostics != nil {
		mux.Handle("GET /debug/diagnostics", DevelopmentOnly(cfg.Development)(http.HandlerFunc(cfg.Diagnostics.Report)))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
