package handler

import (
	"log/slog"
	"net/http"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/store"
)

// DashboardHandler serves the dashboard summary and the admin-only
// activity views.
type DashboardHandler struct {
	store  *store.Store
	guard  *middleware.Guard
	logger *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(st *store.Store, guard *middleware.Guard, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{store: st, guard: guard, logger: logger}
}

type userCounts struct {
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

type summaryResponse struct {
	Scope     string           `json:"scope"`
	Users     userCounts       `json:"users"`
	Roles     *int             `json:"active_roles,omitempty"`
	Resources map[string]int64 `json:"resources"`
}

// Summary counts users and records under the caller's scope.
// GET /api/dashboard/summary
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	scope, err := access.ResolveScope(p, queryString(r, "customer_code"))
	if !h.guard.Allow(w, r, access.ModuleDashboard, err) {
		return
	}

	resp := summaryResponse{Scope: scope.String(), Resources: map[string]int64{}}
	ctx := r.Context()
	if resp.Users.Active, err = h.store.CountUsers(ctx, scope, model.StatusActive); err != nil {
		writeFailure(w, r, h.logger, err, "Failed to load dashboard")
		return
	}
	if resp.Users.Inactive, err = h.store.CountUsers(ctx, scope, model.StatusInactive); err != nil {
		writeFailure(w, r, h.logger, err, "Failed to load dashboard")
		return
	}
	if p.IsAdmin() {
		roles, err := h.store.ListRoles(ctx, true)
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to load dashboard")
			return
		}
		n := len(roles)
		resp.Roles = &n
	}

	for _, res := range model.Resources() {
		n, err := h.store.CountRecords(ctx, &res, store.RecordFilter{
			Scope:       scope,
			VisibleOnly: !p.IsAdmin(),
		})
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to load dashboard")
			return
		}
		resp.Resources[res.Name] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// LoginLogs returns the login history, newest first.
// GET /api/admin/login-logs
func (h *DashboardHandler) LoginLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	f := store.LoginLogFilter{Limit: limit, Offset: offset}
	if id := queryInt(r, "user_id", 0); id > 0 {
		f.UserID = int64(id)
	}

	logs, total, err := h.store.ListLoginLogs(r.Context(), f)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to list login logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource": logs,
		"meta": model.ResponseMeta{
			Count:  len(logs),
			Total:  &total,
			Limit:  limit,
			Offset: offset,
		},
	})
}
