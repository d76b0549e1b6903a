package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/eventflow/internal/application"
)

type userService interface {
	ListUsers(ctx context.Context, principal application.Principal, q application.ListQuery) ([]application.User, error)
	GetUser(ctx context.Context, principal application.Principal, userID string) (application.User, error)
	UpdateProfile(ctx context.Context, principal application.Principal, input application.ProfileInput) (application.User, error)
	ChangeRole(ctx context.Context, principal application.Principal, userID, role string) (application.User, error)
	SetActive(ctx context.Context, principal application.Principal, userID string, active bool) (application.User, error)
}

type permissionService interface {
	Describe(ctx context.Context, principal application.Principal, userID string) (application.UserPermissions, error)
	GrantPermission(ctx context.Context, principal application.Principal, userID string, grant application.PermissionGrant) (application.PermissionOverride, error)
	DenyPermission(ctx context.Context, principal application.Principal, userID string, grant application.PermissionGrant) (application.PermissionOverride, error)
	RevokePermission(ctx context.Context, principal application.Principal, userID, permission string) error
}

type UserHandler struct {
	service     userService
	permissions permissionService
	responder   responder
	logger      *slog.Logger
}

func NewUserHandler(service userService, permissions permissionService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, permissions: permissions, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil || h.permissions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// userIDFromPath resolves the {id} segment, where "me" names the caller.
func userIDFromPath(r *http.Request, principal application.Principal) string {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "me" {
		return principal.UserID
	}
	return id
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalFrom(r)
	q, err := parseListQuery(r)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	users, err := h.service.ListUsers(r.Context(), principal, q)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "List", "result_count", len(users)).DebugContext(r.Context(), "users listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listUsersResponse{Users: toUserDTOs(users)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalFrom(r)
	user, err := h.service.GetUser(r.Context(), principal, userIDFromPath(r, principal))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var input application.ProfileInput
	if err := decodeJSON(r, &input, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), principalFrom(r), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "UpdateProfile").InfoContext(r.Context(), "profile updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}

	principal := principalFrom(r)
	userID := userIDFromPath(r, principal)
	user, err := h.service.ChangeRole(r.Context(), principal, userID, req.Role)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "ChangeRole", "user_id", userID, "role", user.Role.String()).InfoContext(r.Context(), "role changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req, false); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Active == nil {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"active": "is required"}})
		return
	}

	principal := principalFrom(r)
	user, err := h.service.SetActive(r.Context(), principal, userIDFromPath(r, principal), *req.Active)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "SetActive", "user_id", user.ID, "active", user.IsActive).InfoContext(r.Context(), "account status changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalFrom(r)
	described, err := h.permissions.Describe(r.Context(), principal, userIDFromPath(r, principal))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toUserPermissionsDTO(described))
}

func (h *UserHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.override(w, r, "Grant", h.permissionsGrant)
}

func (h *UserHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.override(w, r, "Deny", h.permissionsDeny)
}

func (h *UserHandler) permissionsGrant(ctx context.Context, p application.Principal, userID string, g application.PermissionGrant) (application.PermissionOverride, error) {
	return h.permissions.GrantPermission(ctx, p, userID, g)
}

func (h *UserHandler) permissionsDeny(ctx context.Context, p application.Principal, userID string, g application.PermissionGrant) (application.PermissionOverride, error) {
	return h.permissions.DenyPermission(ctx, p, userID, g)
}

type overrideFunc func(context.Context, application.Principal, string, application.PermissionGrant) (application.PermissionOverride, error)

func (h *UserHandler) override(w http.ResponseWriter, r *http.Request, operation string, apply overrideFunc) {
	if !h.ready(w) {
		return
	}

	var grant application.PermissionGrant
	if err := decodeJSON(r, &grant, true); err != nil {
		h.responder.writeProblem(r.Context(), w, http.StatusBadRequest, "bad_request", err)
		return
	}
	grant.Permission = r.PathValue("permission")

	principal := principalFrom(r)
	userID := userIDFromPath(r, principal)
	override, err := apply(r.Context(), principal, userID, grant)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), operation, "user_id", userID, "permission", grant.Permission).InfoContext(r.Context(), "permission override stored")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, overrideResponse{Override: toOverrideDTO(override)})
}

func (h *UserHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	principal := principalFrom(r)
	userID := userIDFromPath(r, principal)
	permission := r.PathValue("permission")
	if err := h.permissions.RevokePermission(r.Context(), principal, userID, permission); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Revoke", "user_id", userID, "permission", permission).InfoContext(r.Context(), "permission override removed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type userResponse struct {
	User userDTO `json:"user"`
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

type userDTO struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	FullName         string  `json:"full_name"`
	Role             string  `json:"role"`
	Company          string  `json:"company,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	IsActive         bool    `json:"is_active"`
	EmailConfirmedAt *string `json:"email_confirmed_at,omitempty"`
	LastLoginAt      *string `json:"last_login_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:               user.ID,
		Email:            user.Email,
		FullName:         user.FullName,
		Role:             user.Role.String(),
		Company:          user.Company,
		Phone:            user.Phone,
		IsActive:         user.IsActive,
		EmailConfirmedAt: formatTimePtr(user.EmailConfirmedAt),
		LastLoginAt:      formatTimePtr(user.LastLoginAt),
		CreatedAt:        formatTime(user.CreatedAt),
		UpdatedAt:        formatTime(user.UpdatedAt),
	}
}

func toUserDTOs(users []application.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for _, user := range users {
		out = append(out, toUserDTO(user))
	}
	return out
}

type userPermissionsDTO struct {
	UserID    string        `json:"user_id"`
	Role      string        `json:"role"`
	Policy    string        `json:"policy"`
	Effective []string      `json:"effective"`
	Overrides []overrideDTO `json:"overrides"`
}

type overrideResponse struct {
	Override overrideDTO `json:"override"`
}

type overrideDTO struct {
	Permission string  `json:"permission"`
	Granted    bool    `json:"granted"`
	GrantedBy  string  `json:"granted_by,omitempty"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	Active     bool    `json:"active"`
	UpdatedAt  string  `json:"updated_at"`
}

func toOverrideDTO(o application.PermissionOverride) overrideDTO {
	return overrideDTO{
		Permission: string(o.Permission),
		Granted:    o.Granted,
		GrantedBy:  o.GrantedBy,
		ExpiresAt:  formatTimePtr(o.ExpiresAt),
		Active:     o.Active,
		UpdatedAt:  formatTime(o.UpdatedAt),
	}
}

func toUserPermissionsDTO(p application.UserPermissions) userPermissionsDTO {
	overrides := make([]overrideDTO, 0, len(p.Overrides))
	for _, o := range p.Overrides {
		overrides = append(overrides, toOverrideDTO(o))
	}
	return userPermissionsDTO{
		UserID:    p.UserID,
		Role:      p.Role.String(),
		Policy:    string(p.Policy),
		Effective: p.Effective.Strings(),
		Overrides: overrides,
	}
}
