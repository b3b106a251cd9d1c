package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/store"
)

// UserHandler manages portal accounts. Every operation is confined to the
// caller's tenant scope; accounts outside it answer 404.
type UserHandler struct {
	store  *store.Store
	auth   *service.AuthService
	guard  *middleware.Guard
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(st *store.Store, auth *service.AuthService, guard *middleware.Guard, logger *slog.Logger) *UserHandler {
	return &UserHandler{store: st, auth: auth, guard: guard, logger: logger}
}

type userRequest struct {
	Username     *string `json:"username"`
	Email        *string `json:"email_id"`
	Password     *string `json:"password"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone"`
	CustomerCode *string `json:"customer_code"`
	Role         *string `json:"role"`
	RoleID       *int64  `json:"role_id"`
	Status       *string `json:"status"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// scope resolves the caller's scope for the requested customer code. On
// denial the response is written and ok is false.
func (h *UserHandler) scope(w http.ResponseWriter, r *http.Request, requested string) (access.Scope, bool) {
	scope, err := access.ResolveScope(middleware.GetPrincipal(r.Context()), requested)
	if !h.guard.Allow(w, r, access.ModuleUsers, err) {
		return access.Scope{}, false
	}
	return scope, true
}

// load returns the user with the path id if it is visible to the caller.
func (h *UserHandler) load(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID: "+chi.URLParam(r, "id"))
		return nil, false
	}
	scope, ok := h.scope(w, r, "")
	if !ok {
		return nil, false
	}
	u, err := h.store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !scope.Allows(u.CustomerCode)) {
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to get user")
		return nil, false
	}
	return u, true
}

// List returns users in the caller's scope.
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r, queryString(r, "customer_code"))
	if !ok {
		return
	}
	limit, offset := page(r)
	users, total, err := h.store.ListUsers(r.Context(), store.UserFilter{
		Scope:  scope,
		Role:   access.RoleTag(queryString(r, "role")),
		Status: queryString(r, "status"),
		Search: queryString(r, "search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource": users,
		"meta": model.ResponseMeta{
			Count:  len(users),
			Total:  &total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// Get returns one user.
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Create adds a user. The new account's customer code is pinned to the
// caller's own for tenant-scoped callers; only admins create admins.
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	u := &model.User{
		Username:  str(req.Username),
		Email:     str(req.Email),
		FirstName: str(req.FirstName),
		LastName:  str(req.LastName),
		Phone:     str(req.Phone),
		Role:      access.RoleTag(str(req.Role)),
		RoleID:    req.RoleID,
		Status:    str(req.Status),
	}
	if u.Username == "" || req.Password == nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	if u.Email != "" && !validEmail(u.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if u.Role == "" {
		u.Role = access.RoleCustomer
	}
	if !u.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid role: "+string(u.Role))
		return
	}
	if u.Status != "" && !model.ValidStatus(u.Status) {
		writeError(w, http.StatusBadRequest, "Invalid status: "+u.Status)
		return
	}

	p := middleware.GetPrincipal(r.Context())
	if u.Role == access.RoleAdmin && !h.guard.Allow(w, r, access.ModuleUsers, access.RequireAdmin(p)) {
		return
	}
	if !h.pinTenant(w, r, u, str(req.CustomerCode)) {
		return
	}
	if !h.checkRole(w, r, nil, u.RoleID) {
		return
	}

	hash, err := h.auth.HashPassword(*req.Password)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to create user")
		return
	}
	u.PasswordHash = hash
	creator := p.UserID
	u.CreatedBy = &creator

	if err := h.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Username already exists: "+u.Username)
			return
		}
		writeFailure(w, r, h.logger, err, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// pinTenant sets u's customer code from the caller's scope for requested.
func (h *UserHandler) pinTenant(w http.ResponseWriter, r *http.Request, u *model.User, requested string) bool {
	scope, ok := h.scope(w, r, requested)
	if !ok {
		return false
	}
	switch scope.Kind() {
	case access.ScopeNone:
		return h.guard.Allow(w, r, access.ModuleUsers, &access.Error{Kind: access.KindTenantScopeViolation})
	case access.ScopeTenant:
		u.CustomerCode = scope.TenantCode()
	default:
		u.CustomerCode = ""
	}
	return true
}

// checkRole validates a role assignment. Only admins may assign or change
// a permission role; keeping the current one needs nothing.
func (h *UserHandler) checkRole(w http.ResponseWriter, r *http.Request, current, id *int64) bool {
	if id == nil || (current != nil && *current == *id) {
		return true
	}
	if !h.guard.Allow(w, r, access.ModuleUsers, access.RequireAdmin(middleware.GetPrincipal(r.Context()))) {
		return false
	}
	_, err := h.store.GetRole(r.Context(), *id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Role not found")
		return false
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to get role")
		return false
	}
	return true
}

// Update changes a user. Editing an admin, or promoting to admin, requires
// an admin caller.
// PUT /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r)
	if !ok {
		return
	}
	var req userRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p := middleware.GetPrincipal(r.Context())
	promoting := req.Role != nil && access.RoleTag(str(req.Role)) == access.RoleAdmin
	if (u.Role == access.RoleAdmin || promoting) && !h.guard.Allow(w, r, access.ModuleUsers, access.RequireAdmin(p)) {
		return
	}

	if req.Username != nil {
		if str(req.Username) == "" {
			writeError(w, http.StatusBadRequest, "Username cannot be empty")
			return
		}
		u.Username = str(req.Username)
	}
	if req.Email != nil {
		if e := str(req.Email); e != "" && !validEmail(e) {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		u.Email = str(req.Email)
	}
	if req.FirstName != nil {
		u.FirstName = str(req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = str(req.LastName)
	}
	if req.Phone != nil {
		u.Phone = str(req.Phone)
	}
	if req.Role != nil {
		role := access.RoleTag(str(req.Role))
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid role: "+string(role))
			return
		}
		u.Role = role
	}
	if req.Status != nil {
		if !model.ValidStatus(str(req.Status)) {
			writeError(w, http.StatusBadRequest, "Invalid status: "+str(req.Status))
			return
		}
		u.Status = str(req.Status)
	}
	if req.RoleID != nil {
		if !h.checkRole(w, r, u.RoleID, req.RoleID) {
			return
		}
		u.RoleID = req.RoleID
	}
	if req.CustomerCode != nil && !h.pinTenant(w, r, u, str(req.CustomerCode)) {
		return
	}

	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Username already exists: "+u.Username)
			return
		}
		writeFailure(w, r, h.logger, err, "Failed to update user")
		return
	}

	if req.Password != nil {
		hash, err := h.auth.HashPassword(*req.Password)
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to update user")
			return
		}
		if err := h.store.UpdatePassword(r.Context(), u.ID, hash); err != nil {
			writeFailure(w, r, h.logger, err, "Failed to update user")
			return
		}
	}
	writeJSON(w, http.StatusOK, u)
}

// Delete deactivates a user.
// DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r)
	if !ok {
		return
	}
	p := middleware.GetPrincipal(r.Context())
	if u.ID == p.UserID {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}
	if u.Role == access.RoleAdmin && !h.guard.Allow(w, r, access.ModuleUsers, access.RequireAdmin(p)) {
		return
	}
	if err := h.store.DeactivateUser(r.Context(), u.ID); err != nil {
		writeFailure(w, r, h.logger, err, "Failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      u.ID,
	})
}

type userPermissionsResponse struct {
	UserID      int64            `json:"user_id"`
	Role        access.RoleTag   `json:"role"`
	RoleID      *int64           `json:"role_id,omitempty"`
	RoleName    string           `json:"role_name,omitempty"`
	RoleActive  bool             `json:"role_active"`
	Permissions *access.Document `json:"permissions"`
}

// Permissions returns the normalized permissions a user's role grants.
// Inactive or missing roles grant nothing.
// GET /api/users/{id}/permissions
func (h *UserHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.load(w, r)
	if !ok {
		return
	}
	resp := userPermissionsResponse{
		UserID:      u.ID,
		Role:        u.Role,
		RoleID:      u.RoleID,
		Permissions: access.DefaultVocabulary.Empty(),
	}
	if u.RoleID != nil {
		role, err := h.store.GetRole(r.Context(), *u.RoleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeFailure(w, r, h.logger, err, "Failed to get user permissions")
			return
		}
		if role != nil {
			resp.RoleName = role.Name
			resp.RoleActive = role.Active()
			if role.Active() {
				resp.Permissions = role.Permissions
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
