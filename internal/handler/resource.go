package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/store"
)

// ResourceHandler serves CRUD for the catalog resources. Operation
// permissions are enforced by route middleware; the handler applies the
// tenant scope, visibility rules and ownership.
type ResourceHandler struct {
	store  *store.Store
	guard  *middleware.Guard
	logger *slog.Logger
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(st *store.Store, guard *middleware.Guard, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{store: st, guard: guard, logger: logger}
}

// resolveScope resolves the caller's scope for requested. Shared resources
// are never scoped.
func (h *ResourceHandler) resolveScope(w http.ResponseWriter, r *http.Request, res *model.Resource, requested string) (access.Scope, bool) {
	if !res.TenantScoped() {
		return access.AllTenants(), true
	}
	scope, err := access.ResolveScope(middleware.GetPrincipal(r.Context()), requested)
	if !h.guard.Allow(w, r, res.Module, err) {
		return access.Scope{}, false
	}
	return scope, true
}

func (h *ResourceHandler) notFound(w http.ResponseWriter, res *model.Resource, r *http.Request) {
	writeError(w, http.StatusNotFound, res.Label+" not found: "+chi.URLParam(r, "id"))
}

// List returns records of res.
// GET /api/{resource}
func (h *ResourceHandler) List(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := h.resolveScope(w, r, &res, queryString(r, "customer_code"))
		if !ok {
			return
		}
		h.list(w, r, &res, scope)
	}
}

func (h *ResourceHandler) list(w http.ResponseWriter, r *http.Request, res *model.Resource, scope access.Scope) {
	start := time.Now()
	p := middleware.GetPrincipal(r.Context())

	limit, offset := page(r)
	f := store.RecordFilter{
		Scope:       scope,
		VisibleOnly: !p.IsAdmin(),
		Order:       queryString(r, "order"),
		Limit:       limit,
		Offset:      offset,
	}
	if status := queryString(r, "status"); status != "" && res.Readable("status") {
		f.Equals = map[string]string{"status": status}
	}

	records, total, err := h.store.ListRecords(r.Context(), res, f)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to list "+res.Name)
		return
	}

	out := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	meta := &model.ResponseMeta{
		Count:  len(out),
		Limit:  limit,
		Offset: offset,
		Scope:  scope.String(),
		TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if queryBool(r, "include_count") {
		meta.Total = &total
	}
	writeJSON(w, http.StatusOK, model.ListResponse{Resource: out, Meta: meta})
}

// Latest returns the newest visible records of a feed resource.
// GET /api/{resource}/latest
func (h *ResourceHandler) Latest(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := clampInt(queryInt(r, "limit", 5), 1, 20)
		records, _, err := h.store.ListRecords(r.Context(), &res, store.RecordFilter{
			Scope:       access.AllTenants(),
			VisibleOnly: true,
			Limit:       limit,
		})
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to list latest "+res.Name)
			return
		}
		out := make([]map[string]interface{}, len(records))
		for i, rec := range records {
			out[i] = rec
		}
		writeJSON(w, http.StatusOK, model.ListResponse{
			Resource: out,
			Meta:     &model.ResponseMeta{Count: len(out), Limit: limit},
		})
	}
}

// Get returns one record of res.
// GET /api/{resource}/{id}
func (h *ResourceHandler) Get(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := h.resolveScope(w, r, &res, "")
		if !ok {
			return
		}
		h.get(w, r, &res, scope)
	}
}

func (h *ResourceHandler) get(w http.ResponseWriter, r *http.Request, res *model.Resource, scope access.Scope) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID: "+chi.URLParam(r, "id"))
		return
	}
	rec, err := h.store.GetRecord(r.Context(), res, scope, id)
	if errors.Is(err, store.ErrNotFound) {
		h.notFound(w, res, r)
		return
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to get "+res.Name)
		return
	}
	if !visible(middleware.GetPrincipal(r.Context()), res, rec) {
		h.notFound(w, res, r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// visible applies the resource's customer visibility rule to one record.
func visible(p *access.Principal, res *model.Resource, rec store.Record) bool {
	if p.IsAdmin() || res.VisibleColumn == "" {
		return true
	}
	return fmt.Sprint(rec[res.VisibleColumn]) == res.VisibleValue
}

// tenantValue returns the customer code carried in a request body.
func tenantValue(res *model.Resource, values map[string]interface{}) string {
	if !res.TenantScoped() {
		return ""
	}
	v, ok := values[res.TenantColumn]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Create inserts a record. Under a tenant scope the row's customer code is
// pinned to that tenant whatever the body says.
// POST /api/{resource}
func (h *ResourceHandler) Create(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var values map[string]interface{}
		if err := readJSON(r, &values); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		if len(values) == 0 {
			writeError(w, http.StatusBadRequest, "Request body must be a non-empty object")
			return
		}

		scope, ok := h.resolveScope(w, r, &res, tenantValue(&res, values))
		if !ok {
			return
		}
		if res.TenantScoped() {
			switch scope.Kind() {
			case access.ScopeNone:
				h.guard.Allow(w, r, res.Module, &access.Error{Kind: access.KindTenantScopeViolation})
				return
			case access.ScopeTenant:
				values[res.TenantColumn] = scope.TenantCode()
			}
		}

		p := middleware.GetPrincipal(r.Context())
		rec, err := h.store.CreateRecord(r.Context(), &res, values, p.UserID)
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to create "+res.Name)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// authorizeWrite resolves the row scope for an update or delete and, for
// owner-only resources, checks that the caller owns the row.
func (h *ResourceHandler) authorizeWrite(w http.ResponseWriter, r *http.Request, res *model.Resource) (access.Scope, int64, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID: "+chi.URLParam(r, "id"))
		return access.Scope{}, 0, false
	}
	scope, ok := h.resolveScope(w, r, res, "")
	if !ok {
		return access.Scope{}, 0, false
	}
	if !res.OwnerOnlyWrites {
		return scope, id, true
	}

	p := middleware.GetPrincipal(r.Context())
	err := access.RequireOwnerOrAdmin(r.Context(), p, func(ctx context.Context) (int64, error) {
		return h.store.RecordOwner(ctx, res, scope, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		h.notFound(w, res, r)
		return access.Scope{}, 0, false
	}
	if !h.guard.Allow(w, r, res.Module, err) {
		return access.Scope{}, 0, false
	}
	return scope, id, true
}

// Update changes a record in the caller's scope. Tenant-scoped callers
// cannot move a record to another customer or clear its customer code.
// PUT /api/{resource}/{id}
func (h *ResourceHandler) Update(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, id, ok := h.authorizeWrite(w, r, &res)
		if !ok {
			return
		}
		var values map[string]interface{}
		if err := readJSON(r, &values); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
		if _, has := values[res.TenantColumn]; has && res.TenantScoped() {
			switch code := tenantValue(&res, values); {
			case code != "":
				target, ok := h.resolveScope(w, r, &res, code)
				if !ok {
					return
				}
				values[res.TenantColumn] = target.TenantCode()
			case scope.Kind() == access.ScopeTenant:
				values[res.TenantColumn] = scope.TenantCode()
			case scope.Kind() == access.ScopeNone:
				h.guard.Allow(w, r, res.Module, &access.Error{Kind: access.KindTenantScopeViolation})
				return
			}
		}

		rec, err := h.store.UpdateRecord(r.Context(), &res, scope, id, values)
		if errors.Is(err, store.ErrNotFound) {
			h.notFound(w, &res, r)
			return
		}
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to update "+res.Name)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// Delete removes a record in the caller's scope.
// DELETE /api/{resource}/{id}
func (h *ResourceHandler) Delete(res model.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, id, ok := h.authorizeWrite(w, r, &res)
		if !ok {
			return
		}
		err := h.store.DeleteRecord(r.Context(), &res, scope, id)
		if errors.Is(err, store.ErrNotFound) {
			h.notFound(w, &res, r)
			return
		}
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to delete "+res.Name)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"id":      id,
		})
	}
}
