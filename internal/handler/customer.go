package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/store"
)

// Customer portal routes name the customer in the path. Customers may only
// name their own code; admins may name any.

// customerResource resolves the {resource} path segment to a tenant-scoped
// catalog entry.
func customerResource(w http.ResponseWriter, r *http.Request) (model.Resource, bool) {
	name := chi.URLParam(r, "resource")
	res, ok := model.LookupResource(name)
	if !ok || !res.TenantScoped() {
		writeError(w, http.StatusNotFound, "Unknown resource: "+name)
		return model.Resource{}, false
	}
	return res, true
}

// customerScope checks module access on res and resolves the scope for the
// path's customer code.
func (h *ResourceHandler) customerScope(w http.ResponseWriter, r *http.Request, res *model.Resource) (access.Scope, bool) {
	p := middleware.GetPrincipal(r.Context())
	if !h.guard.Allow(w, r, res.Module, access.RequireModuleAccess(p, res.Module)) {
		return access.Scope{}, false
	}
	return h.resolveScope(w, r, res, chi.URLParam(r, "customerCode"))
}

// CustomerList lists one customer's records of a resource.
// GET /api/customer/{customerCode}/{resource}
func (h *ResourceHandler) CustomerList(w http.ResponseWriter, r *http.Request) {
	res, ok := customerResource(w, r)
	if !ok {
		return
	}
	scope, ok := h.customerScope(w, r, &res)
	if !ok {
		return
	}
	h.list(w, r, &res, scope)
}

// CustomerGet returns one of a customer's records.
// GET /api/customer/{customerCode}/{resource}/{id}
func (h *ResourceHandler) CustomerGet(w http.ResponseWriter, r *http.Request) {
	res, ok := customerResource(w, r)
	if !ok {
		return
	}
	scope, ok := h.customerScope(w, r, &res)
	if !ok {
		return
	}
	h.get(w, r, &res, scope)
}

// OverviewPermissions are the permissions of which the customer overview
// requires at least one.
var OverviewPermissions = []access.Permission{
	access.Perm(access.ModuleOrders, access.OpView),
	access.Perm(access.ModulePayments, access.OpView),
	access.Perm(access.ModuleInvoiceDelivery, access.OpView),
}

type overviewResponse struct {
	CustomerCode string           `json:"customer_code"`
	Counts       map[string]int64 `json:"counts"`
}

// CustomerOverview counts a customer's records for every tenant-scoped
// resource the caller can view.
// GET /api/customer/{customerCode}/overview
func (h *ResourceHandler) CustomerOverview(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "customerCode")
	p := middleware.GetPrincipal(r.Context())
	scope, err := access.ResolveScope(p, code)
	if !h.guard.Allow(w, r, middleware.AnyModule(OverviewPermissions...), err) {
		return
	}

	resp := overviewResponse{CustomerCode: code, Counts: map[string]int64{}}
	for _, res := range model.Resources() {
		if !res.TenantScoped() || access.Require(p, res.Module, access.OpView) != nil {
			continue
		}
		n, err := h.store.CountRecords(r.Context(), &res, store.RecordFilter{
			Scope:       scope,
			VisibleOnly: !p.IsAdmin(),
		})
		if err != nil {
			writeFailure(w, r, h.logger, err, "Failed to load customer overview")
			return
		}
		resp.Counts[res.Name] = n
	}
	writeJSON(w, http.StatusOK, resp)
}
