package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/eventflow/internal/application"
)

const sessionCookieName = "session_token"

type authService interface {
	SignIn(ctx context.Context, params application.SignInParams) (application.SignInResult, error)
	SignUp(ctx context.Context, params application.SignUpParams) (application.SignUpResult, error)
	ConfirmEmail(ctx context.Context, token string) (application.User, error)
	RefreshSession(ctx context.Context, params application.RefreshSessionParams) (application.RefreshSessionResult, error)
	SignOut(ctx context.Context, token string) error
}

type AuthHandler struct {
	service       authService
	secureCookies bool
	responder     responder
	logger        *slog.Logger
}

// NewAuthHandler builds the authentication endpoints. secureCookies marks the
// session cookie Secure and should be set outside local development.
func NewAuthHandler(service authService, secureCookies bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, secureCookies: secureCookies, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req application.SignInParams
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}
	req.Fingerprint = r.UserAgent()

	logger := h.log(r.Context(), "SignIn")
	result, err := h.service.SignIn(r.Context(), req)
	if err != nil {
		logger.WarnContext(r.Context(), "sign-in rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)

	logger.With("user_id", result.User.ID).InfoContext(r.Context(), "user signed in")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: formatTime(result.Session.ExpiresAt),
		User:      toUserDTO(result.User),
		Principal: principalDTO{
			UserID:      result.User.ID,
			Role:        result.User.Role.String(),
			Permissions: result.Permissions.Strings(),
		},
	})
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req application.SignUpParams
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := h.service.SignUp(r.Context(), req)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "SignUp", "user_id", result.User.ID).InfoContext(r.Context(), "account created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, signUpResponse{
		User:              toUserDTO(result.User),
		ConfirmationToken: result.ConfirmationToken,
	})
}

func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	user, err := h.service.ConfirmEmail(r.Context(), req.Token)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeProblem(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingSessionToken)
		return
	}

	result, err := h.service.RefreshSession(r.Context(), application.RefreshSessionParams{Token: token, Fingerprint: r.UserAgent()})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: formatTime(result.Session.ExpiresAt),
	})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeProblem(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingSessionToken)
		return
	}

	if err := h.service.SignOut(r.Context(), token); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.clearSessionCookie(w)
	h.log(r.Context(), "SignOut").InfoContext(r.Context(), "session revoked")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Session describes the principal behind the current token.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeProblem(r.Context(), w, http.StatusUnauthorized, "unauthenticated", errMissingSessionToken)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, principalResponse{Principal: toPrincipalDTO(principal)})
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      userDTO      `json:"user"`
	Principal principalDTO `json:"principal"`
}

type signUpResponse struct {
	User              userDTO `json:"user"`
	ConfirmationToken string  `json:"confirmation_token"`
}

type principalResponse struct {
	Principal principalDTO `json:"principal"`
}

type principalDTO struct {
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func toPrincipalDTO(p application.Principal) principalDTO {
	return principalDTO{UserID: p.UserID, Role: p.Role.String(), Permissions: p.Permissions.Strings()}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
