package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/store"
)

// RoleHandler manages roles and their permission documents. Documents are
// normalized before they are stored, so the database only ever holds the
// canonical form.
type RoleHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(st *store.Store, logger *slog.Logger) *RoleHandler {
	return &RoleHandler{store: st, logger: logger}
}

type roleRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Permissions json.RawMessage `json:"permissions"`
}

func (h *RoleHandler) load(w http.ResponseWriter, r *http.Request) (*model.Role, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid role ID: "+chi.URLParam(r, "id"))
		return nil, false
	}
	role, err := h.store.GetRole(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Role not found: "+chi.URLParam(r, "id"))
		return nil, false
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to get role")
		return nil, false
	}
	return role, true
}

// List returns all roles.
// GET /api/roles
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, queryString(r, "status") == model.StatusActive)
}

// Active returns the active roles. Any signed-in user may call it.
// GET /api/roles/active
func (h *RoleHandler) Active(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *RoleHandler) list(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	roles, err := h.store.ListRoles(r.Context(), activeOnly)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to list roles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource": roles,
		"meta":     model.ResponseMeta{Count: len(roles)},
	})
}

// Get returns one role.
// GET /api/roles/{id}
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Create adds a role.
// POST /api/roles
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	role := &model.Role{
		Name:        str(req.Name),
		Description: str(req.Description),
		Status:      str(req.Status),
		Permissions: access.Normalize(req.Permissions),
	}
	if role.Name == "" {
		writeError(w, http.StatusBadRequest, "Role name is required")
		return
	}
	if role.Status != "" && !model.ValidStatus(role.Status) {
		writeError(w, http.StatusBadRequest, "Invalid status: "+role.Status)
		return
	}

	if err := h.store.CreateRole(r.Context(), role); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Role already exists: "+role.Name)
			return
		}
		writeFailure(w, r, h.logger, err, "Failed to create role")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// Update changes a role. A permissions field, when present, replaces the
// whole document.
// PUT /api/roles/{id}
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	role, ok := h.load(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name != nil {
		if str(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "Role name cannot be empty")
			return
		}
		role.Name = str(req.Name)
	}
	if req.Description != nil {
		role.Description = str(req.Description)
	}
	if req.Status != nil {
		if !model.ValidStatus(str(req.Status)) {
			writeError(w, http.StatusBadRequest, "Invalid status: "+str(req.Status))
			return
		}
		role.Status = str(req.Status)
	}
	if len(req.Permissions) > 0 {
		role.Permissions = access.Normalize(req.Permissions)
	}

	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "Role already exists: "+role.Name)
			return
		}
		writeFailure(w, r, h.logger, err, "Failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Delete deactivates a role that no active user holds.
// DELETE /api/roles/{id}
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	role, ok := h.load(w, r)
	if !ok {
		return
	}
	err := h.store.DeactivateRole(r.Context(), role.ID)
	if errors.Is(err, store.ErrConflict) {
		writeError(w, http.StatusConflict, "Cannot delete role "+role.Name+": "+strings.TrimPrefix(err.Error(), "conflict: "))
		return
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to delete role")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"id":      role.ID,
	})
}
