package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/session"
	"github.com/custportal/portal/internal/store"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store     *store.Store
	authSvc   *service.AuthService
	router    chi.Router
	decisions *decisionLog
}

// decisionLog records the module label of every guard decision.
type decisionLog struct{ modules []access.Module }

func (d *decisionLog) RecordDecision(m access.Module, _ error) { d.modules = append(d.modules, m) }

func (d *decisionLog) last() access.Module {
	if len(d.modules) == 0 {
		return ""
	}
	return d.modules[len(d.modules)-1]
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// Chi router with routes mounted. There is no auth middleware: each request
// carries the principal it is made as.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewMemory()
	if err != nil {
		t.Fatalf("store.NewMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	revoker := session.NewMemory(session.Config{})
	t.Cleanup(func() { revoker.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := service.NewAuthService(st, revoker, service.AuthOptions{
		JWTSecret:  testJWTSecret,
		BcryptCost: bcrypt.MinCost,
	})
	decisions := &decisionLog{}
	guard := middleware.NewGuard(logger, decisions)

	authH := NewAuthHandler(authSvc, st, logger, nil)
	userH := NewUserHandler(st, authSvc, guard, logger)
	roleH := NewRoleHandler(st, logger)
	resH := NewResourceHandler(st, guard, logger)
	dashH := NewDashboardHandler(st, guard, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authH.Login)
		r.Get("/auth/profile", authH.Profile)
		r.Get("/auth/my-role-permissions", authH.MyRolePermissions)

		r.Get("/users", userH.List)
		r.Post("/users", userH.Create)
		r.Get("/users/{id}", userH.Get)
		r.Put("/users/{id}", userH.Update)
		r.Delete("/users/{id}", userH.Delete)
		r.Get("/users/{id}/permissions", userH.Permissions)

		r.Get("/roles", roleH.List)
		r.Post("/roles", roleH.Create)
		r.Delete("/roles/{id}", roleH.Delete)

		for _, res := range model.Resources() {
			r.Get("/"+res.Name, resH.List(res))
			r.Post("/"+res.Name, resH.Create(res))
			r.Get("/"+res.Name+"/{id}", resH.Get(res))
			if res.Feed {
				r.Get("/"+res.Name+"/latest", resH.Latest(res))
			}
			r.Put("/"+res.Name+"/{id}", resH.Update(res))
			r.Delete("/"+res.Name+"/{id}", resH.Delete(res))
		}

		r.Get("/customer/{customerCode}/overview", resH.CustomerOverview)
		r.Get("/customer/{customerCode}/{resource}", resH.CustomerList)

		r.Get("/dashboard/summary", dashH.Summary)
	})

	return &testEnv{store: st, authSvc: authSvc, router: r, decisions: decisions}
}

// seedUser creates an active account with the test password.
func (e *testEnv) seedUser(t *testing.T, username string, role access.RoleTag, customerCode string, roleID *int64) *model.User {
	t.Helper()
	hash, err := e.authSvc.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		RoleID:       roleID,
		CustomerCode: customerCode,
	}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seedUser: %v", err)
	}
	return u
}

// seedRole creates an active role with the given permission JSON.
func (e *testEnv) seedRole(t *testing.T, name, perms string) *model.Role {
	t.Helper()
	role := &model.Role{
		Name:        name,
		Description: "Test role: " + name,
		Permissions: access.Normalize([]byte(perms)),
	}
	if err := e.store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("seedRole: %v", err)
	}
	return role
}

// seedRecord inserts a catalog record owned by ownerID.
func (e *testEnv) seedRecord(t *testing.T, name string, values map[string]interface{}, ownerID int64) int64 {
	t.Helper()
	res, ok := model.LookupResource(name)
	if !ok {
		t.Fatalf("unknown resource %s", name)
	}
	rec, err := e.store.CreateRecord(context.Background(), &res, values, ownerID)
	if err != nil {
		t.Fatalf("seedRecord(%s): %v", name, err)
	}
	return rec.ID()
}

func adminPrincipal(u *model.User) *access.Principal {
	return &access.Principal{UserID: u.ID, Role: access.RoleAdmin}
}

func customerPrincipal(u *model.User, perms string) *access.Principal {
	return &access.Principal{
		UserID:     u.ID,
		TenantCode: u.CustomerCode,
		Role:       access.RoleCustomer,
		Document:   access.Normalize([]byte(perms)),
	}
}

// do executes an HTTP request as p against the test router and returns the
// recorder. A nil p makes an anonymous request.
func (e *testEnv) do(t *testing.T, p *access.Principal, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func assertErrorMessage(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Message != want {
		t.Errorf("message = %q, want %q", resp.Error.Message, want)
	}
}

const ordersPerms = `{"orders":{"view":true,"add":true,"edit":true,"delete":true}}`

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	t.Run("valid credentials", func(t *testing.T) {
		rr := env.do(t, nil, "POST", "/api/auth/login",
			toJSON(t, map[string]string{"username": "alice", "password": testPassword}))
		assertStatus(t, rr, http.StatusOK)

		var resp loginResponse
		decodeJSON(t, rr, &resp)
		if resp.Token == "" || resp.TokenType != "bearer" {
			t.Errorf("unexpected login response: %+v", resp)
		}
		if resp.User == nil || resp.User.Username != "alice" {
			t.Errorf("user = %+v", resp.User)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := env.do(t, nil, "POST", "/api/auth/login",
			toJSON(t, map[string]string{"username": "alice", "password": "nope-nope-nope"}))
		assertStatus(t, rr, http.StatusUnauthorized)
		assertErrorMessage(t, rr, "Invalid credentials")
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := env.do(t, nil, "POST", "/api/auth/login", toJSON(t, map[string]string{"username": "alice"}))
		assertStatus(t, rr, http.StatusBadRequest)
		assertErrorMessage(t, rr, "Username and password are required")
	})
}

func TestMyRolePermissions(t *testing.T) {
	env := newTestEnv(t)
	role := env.seedRole(t, "viewer", `{"orders":{"view":true}}`)
	withRole := env.seedUser(t, "alice", access.RoleCustomer, "ACME", &role.ID)
	without := env.seedUser(t, "bob", access.RoleCustomer, "ACME", nil)

	rr := env.do(t, customerPrincipal(withRole, ""), "GET", "/api/auth/my-role-permissions", nil)
	assertStatus(t, rr, http.StatusOK)
	var resp struct {
		HasRole     bool                       `json:"hasRole"`
		Permissions map[string]map[string]bool `json:"permissions"`
		Role        *model.Role                `json:"role"`
	}
	decodeJSON(t, rr, &resp)
	if !resp.HasRole || resp.Role == nil || resp.Role.Name != "viewer" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !resp.Permissions["orders"]["view"] || resp.Permissions["orders"]["edit"] {
		t.Errorf("permissions = %v", resp.Permissions)
	}

	rr = env.do(t, customerPrincipal(without, ""), "GET", "/api/auth/my-role-permissions", nil)
	assertStatus(t, rr, http.StatusOK)
	var none map[string]interface{}
	decodeJSON(t, rr, &none)
	if none["hasRole"] != false || none["message"] != "User has no role assigned" {
		t.Errorf("unexpected response: %v", none)
	}
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

func TestResourceList_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, admin.ID)
	env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-2", "customer_name": "Globex", "customer_code": "GLOBEX",
	}, admin.ID)

	tests := []struct {
		name  string
		p     *access.Principal
		path  string
		scope string
		codes []string
	}{
		{"customer sees own tenant", customerPrincipal(alice, ordersPerms), "/api/orders", "tenant:ACME", []string{"ACME"}},
		{"customer naming own code", customerPrincipal(alice, ordersPerms), "/api/orders?customer_code=ACME", "tenant:ACME", []string{"ACME"}},
		{"admin sees every tenant", adminPrincipal(admin), "/api/orders", "all", []string{"ACME", "GLOBEX"}},
		{"admin narrows to one tenant", adminPrincipal(admin), "/api/orders?customer_code=GLOBEX", "tenant:GLOBEX", []string{"GLOBEX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.p, "GET", tt.path, nil)
			assertStatus(t, rr, http.StatusOK)

			var resp model.ListResponse
			decodeJSON(t, rr, &resp)
			if resp.Meta == nil || resp.Meta.Scope != tt.scope {
				t.Errorf("meta scope = %+v, want %s", resp.Meta, tt.scope)
			}
			got := map[string]bool{}
			for _, rec := range resp.Resource {
				got[fmt.Sprint(rec["customer_code"])] = true
			}
			if len(got) != len(tt.codes) {
				t.Fatalf("customer codes = %v, want %v", got, tt.codes)
			}
			for _, c := range tt.codes {
				if !got[c] {
					t.Errorf("missing customer code %s in %v", c, got)
				}
			}
		})
	}
}

func TestResourceList_ForeignCustomerCode(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	rr := env.do(t, customerPrincipal(alice, ordersPerms), "GET", "/api/orders?customer_code=GLOBEX", nil)
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorMessage(t, rr, "Access denied. Requested customer code GLOBEX does not match ACME")
}

func TestResourceList_NoCustomerCode(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	orphan := env.seedUser(t, "orphan", access.RoleCustomer, "", nil)
	env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, admin.ID)

	rr := env.do(t, customerPrincipal(orphan, ordersPerms), "GET", "/api/orders", nil)
	assertStatus(t, rr, http.StatusOK)
	var resp model.ListResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 0 {
		t.Errorf("expected no records, got %d", len(resp.Resource))
	}

	rr = env.do(t, customerPrincipal(orphan, ordersPerms), "POST", "/api/orders",
		toJSON(t, map[string]interface{}{"invoice_number": "INV-9", "customer_name": "X"}))
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorMessage(t, rr, "Access denied. No customer code is assigned to this account")
}

func TestResourceCreate_PinsTenantAndOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	rr := env.do(t, customerPrincipal(alice, ordersPerms), "POST", "/api/orders",
		toJSON(t, map[string]interface{}{"invoice_number": "INV-7", "customer_name": "Acme", "quantity": 3}))
	assertStatus(t, rr, http.StatusCreated)

	var rec map[string]interface{}
	decodeJSON(t, rr, &rec)
	if rec["customer_code"] != "ACME" {
		t.Errorf("customer_code = %v, want ACME", rec["customer_code"])
	}
	if rec["created_by"] != float64(alice.ID) {
		t.Errorf("created_by = %v, want %d", rec["created_by"], alice.ID)
	}
}

func TestResourceCreate_EmptyBody(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	rr := env.do(t, customerPrincipal(alice, ordersPerms), "POST", "/api/orders", bytes.NewBufferString(`{}`))
	assertStatus(t, rr, http.StatusBadRequest)
	assertErrorMessage(t, rr, "Request body must be a non-empty object")
}

func TestResourceGet_OtherTenantIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	id := env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-2", "customer_name": "Globex", "customer_code": "GLOBEX",
	}, admin.ID)
	path := fmt.Sprintf("/api/orders/%d", id)

	rr := env.do(t, customerPrincipal(alice, ordersPerms), "GET", path, nil)
	assertStatus(t, rr, http.StatusNotFound)
	assertErrorMessage(t, rr, fmt.Sprintf("Orders not found: %d", id))

	rr = env.do(t, customerPrincipal(alice, ordersPerms), "DELETE", path, nil)
	assertStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, adminPrincipal(admin), "GET", path, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestResourceUpdate_CannotMoveTenant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	id := env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, alice.ID)

	rr := env.do(t, customerPrincipal(alice, ordersPerms), "PUT", fmt.Sprintf("/api/orders/%d", id),
		toJSON(t, map[string]interface{}{"customer_code": "GLOBEX"}))
	assertStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, customerPrincipal(alice, ordersPerms), "PUT", fmt.Sprintf("/api/orders/%d", id),
		toJSON(t, map[string]interface{}{"status": "shipped"}))
	assertStatus(t, rr, http.StatusOK)
	var rec map[string]interface{}
	decodeJSON(t, rr, &rec)
	if rec["status"] != "shipped" || rec["customer_code"] != "ACME" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestResourceUpdate_CannotClearTenant(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	id := env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, alice.ID)
	path := fmt.Sprintf("/api/orders/%d", id)

	for _, body := range []string{`{"customer_code":null,"notes":"a"}`, `{"customer_code":"","notes":"b"}`} {
		rr := env.do(t, customerPrincipal(alice, ordersPerms), "PUT", path, bytes.NewBufferString(body))
		assertStatus(t, rr, http.StatusOK)
		var rec map[string]interface{}
		decodeJSON(t, rr, &rec)
		if rec["customer_code"] != "ACME" {
			t.Errorf("body %s: customer_code = %v, want ACME", body, rec["customer_code"])
		}
	}

	rr := env.do(t, adminPrincipal(admin), "GET", path, nil)
	assertStatus(t, rr, http.StatusOK)
	var rec map[string]interface{}
	decodeJSON(t, rr, &rec)
	if rec["customer_code"] != "ACME" {
		t.Errorf("stored customer_code = %v, want ACME", rec["customer_code"])
	}
}

func TestResourceUpdate_NoTenantCannotSetCode(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	orphan := env.seedUser(t, "orphan", access.RoleCustomer, "", nil)
	id := env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, admin.ID)

	rr := env.do(t, customerPrincipal(orphan, ordersPerms), "PUT", fmt.Sprintf("/api/orders/%d", id),
		bytes.NewBufferString(`{"customer_code":null}`))
	assertStatus(t, rr, http.StatusForbidden)
}

func TestMeetings_OwnerOnlyWrites(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	bob := env.seedUser(t, "bob", access.RoleCustomer, "ACME", nil)
	perms := `{"meetings":{"view":true,"add":true,"edit":true,"delete":true}}`

	id := env.seedRecord(t, "meetings", map[string]interface{}{
		"title": "Kickoff", "meeting_date": "2026-01-10", "minutes": "Agreed scope",
		"customer_code": "ACME",
	}, alice.ID)
	path := fmt.Sprintf("/api/meetings/%d", id)

	rr := env.do(t, customerPrincipal(bob, perms), "PUT", path, toJSON(t, map[string]string{"title": "Hijacked"}))
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorMessage(t, rr, "Access denied. You can only access your own resources.")

	rr = env.do(t, customerPrincipal(bob, perms), "DELETE", path, nil)
	assertStatus(t, rr, http.StatusForbidden)

	rr = env.do(t, customerPrincipal(bob, perms), "GET", path, nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, customerPrincipal(alice, perms), "PUT", path, toJSON(t, map[string]string{"title": "Kickoff v2"}))
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, adminPrincipal(admin), "DELETE", path, nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, customerPrincipal(alice, perms), "DELETE", path, nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestProducts_VisibleOnlyForCustomers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	perms := `{"products":{"view":true}}`

	env.seedRecord(t, "products", map[string]interface{}{
		"product_number": "P-1", "product_name": "Widget", "status": "active",
	}, admin.ID)
	hidden := env.seedRecord(t, "products", map[string]interface{}{
		"product_number": "P-2", "product_name": "Gadget", "status": "inactive",
	}, admin.ID)

	rr := env.do(t, customerPrincipal(alice, perms), "GET", "/api/products?include_count=true", nil)
	assertStatus(t, rr, http.StatusOK)
	var resp model.ListResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 1 || resp.Meta.Total == nil || *resp.Meta.Total != 1 {
		t.Errorf("customer should see one product, got %d", len(resp.Resource))
	}

	rr = env.do(t, customerPrincipal(alice, perms), "GET", fmt.Sprintf("/api/products/%d", hidden), nil)
	assertStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, adminPrincipal(admin), "GET", "/api/products", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &resp)
	if len(resp.Resource) != 2 {
		t.Errorf("admin should see both products, got %d", len(resp.Resource))
	}
}

// ---------------------------------------------------------------------------
// Customer portal
// ---------------------------------------------------------------------------

func TestNewsFeed(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	for i, status := range []string{"active", "inactive", "active", "active"} {
		env.seedRecord(t, "news", map[string]interface{}{
			"title":          fmt.Sprintf("Item %d", i),
			"content":        "body",
			"status":         status,
			"published_date": fmt.Sprintf("2026-0%d-01 09:00:00", i+1),
		}, admin.ID)
	}

	rr := env.do(t, customerPrincipal(alice, `{}`), "GET", "/api/news", nil)
	assertStatus(t, rr, http.StatusOK)
	var list model.ListResponse
	decodeJSON(t, rr, &list)
	if len(list.Resource) != 3 {
		t.Errorf("customer sees %d news items, want 3 active", len(list.Resource))
	}
	if list.Meta.Scope != "all" {
		t.Errorf("scope = %q, want all", list.Meta.Scope)
	}

	rr = env.do(t, customerPrincipal(alice, `{}`), "GET", "/api/news/latest?limit=2", nil)
	assertStatus(t, rr, http.StatusOK)
	var latest model.ListResponse
	decodeJSON(t, rr, &latest)
	if len(latest.Resource) != 2 {
		t.Fatalf("latest returned %d items, want 2", len(latest.Resource))
	}
	if latest.Resource[0]["title"] != "Item 3" || latest.Resource[1]["title"] != "Item 2" {
		t.Errorf("latest order = %v, %v", latest.Resource[0]["title"], latest.Resource[1]["title"])
	}

	rr = env.do(t, adminPrincipal(admin), "GET", "/api/news/latest?limit=50", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &latest)
	if len(latest.Resource) != 3 || latest.Meta.Limit != 20 {
		t.Errorf("admin latest: %d items, limit %d", len(latest.Resource), latest.Meta.Limit)
	}
}

func TestCustomerRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	for i, code := range []string{"ACME", "ACME", "GLOBEX"} {
		env.seedRecord(t, "orders", map[string]interface{}{
			"invoice_number": fmt.Sprintf("INV-%d", i), "customer_name": code, "customer_code": code,
		}, admin.ID)
	}
	perms := `{"orders":{"view":true}}`

	t.Run("overview counts viewable resources", func(t *testing.T) {
		rr := env.do(t, customerPrincipal(alice, perms), "GET", "/api/customer/ACME/overview", nil)
		assertStatus(t, rr, http.StatusOK)
		var resp overviewResponse
		decodeJSON(t, rr, &resp)
		if resp.Counts["orders"] != 2 {
			t.Errorf("orders count = %d, want 2", resp.Counts["orders"])
		}
		if _, ok := resp.Counts["payments"]; ok {
			t.Error("payments should be omitted without payments.view")
		}
	})

	t.Run("overview of another customer", func(t *testing.T) {
		rr := env.do(t, customerPrincipal(alice, perms), "GET", "/api/customer/GLOBEX/overview", nil)
		assertStatus(t, rr, http.StatusForbidden)
		if got := env.decisions.last(); got != "orders|payments|invoice_delivery" {
			t.Errorf("decision recorded under %q", got)
		}
	})

	t.Run("list without module access", func(t *testing.T) {
		rr := env.do(t, customerPrincipal(alice, perms), "GET", "/api/customer/ACME/payments", nil)
		assertStatus(t, rr, http.StatusForbidden)
		assertErrorMessage(t, rr, "Access denied. No permissions for module: payments")
	})

	t.Run("shared resource is not a customer resource", func(t *testing.T) {
		rr := env.do(t, adminPrincipal(admin), "GET", "/api/customer/ACME/products", nil)
		assertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("admin lists any customer", func(t *testing.T) {
		rr := env.do(t, adminPrincipal(admin), "GET", "/api/customer/GLOBEX/orders", nil)
		assertStatus(t, rr, http.StatusOK)
		var resp model.ListResponse
		decodeJSON(t, rr, &resp)
		if len(resp.Resource) != 1 {
			t.Errorf("expected 1 GLOBEX order, got %d", len(resp.Resource))
		}
	})
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func TestUserCreate_PinsCallerTenant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	perms := `{"users":{"view":true,"add":true}}`

	rr := env.do(t, customerPrincipal(alice, perms), "POST", "/api/users", toJSON(t, map[string]string{
		"username": "carol", "password": testPassword,
	}))
	assertStatus(t, rr, http.StatusCreated)
	var u model.User
	decodeJSON(t, rr, &u)
	if u.CustomerCode != "ACME" || u.Role != access.RoleCustomer {
		t.Errorf("created user = %+v", u)
	}

	rr = env.do(t, customerPrincipal(alice, perms), "POST", "/api/users", toJSON(t, map[string]string{
		"username": "mallory", "password": testPassword, "role": "admin",
	}))
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorMessage(t, rr, "Admin access required")

	rr = env.do(t, customerPrincipal(alice, perms), "POST", "/api/users", toJSON(t, map[string]string{
		"username": "carol", "password": testPassword,
	}))
	assertStatus(t, rr, http.StatusConflict)
}

func TestUserRoleAssignment_AdminOnly(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	basic := env.seedRole(t, "basic", `{"users":{"view":true,"add":true,"edit":true}}`)
	full := env.seedRole(t, "full", `{"orders":{"view":true,"add":true,"edit":true,"delete":true}}`)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", &basic.ID)
	self := customerPrincipal(alice, `{"users":{"view":true,"add":true,"edit":true}}`)
	path := fmt.Sprintf("/api/users/%d", alice.ID)

	rr := env.do(t, self, "PUT", path, toJSON(t, map[string]interface{}{"role_id": full.ID}))
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorMessage(t, rr, "Admin access required")

	rr = env.do(t, self, "PUT", path, toJSON(t, map[string]interface{}{"role_id": basic.ID, "first_name": "Alice"}))
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, self, "POST", "/api/users", toJSON(t, map[string]interface{}{
		"username": "dave", "password": testPassword, "role_id": full.ID,
	}))
	assertStatus(t, rr, http.StatusForbidden)

	got, err := env.store.GetUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.RoleID == nil || *got.RoleID != basic.ID {
		t.Errorf("role_id = %v, want %d", got.RoleID, basic.ID)
	}

	rr = env.do(t, adminPrincipal(admin), "PUT", path, toJSON(t, map[string]interface{}{"role_id": full.ID}))
	assertStatus(t, rr, http.StatusOK)
}

func TestUserGet_OutOfScope(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	other := env.seedUser(t, "gary", access.RoleCustomer, "GLOBEX", nil)

	rr := env.do(t, customerPrincipal(alice, `{"users":{"view":true}}`), "GET", fmt.Sprintf("/api/users/%d", other.ID), nil)
	assertStatus(t, rr, http.StatusNotFound)
	assertErrorMessage(t, rr, "User not found")
}

func TestUserDelete(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)

	rr := env.do(t, adminPrincipal(admin), "DELETE", fmt.Sprintf("/api/users/%d", admin.ID), nil)
	assertStatus(t, rr, http.StatusBadRequest)
	assertErrorMessage(t, rr, "Cannot delete your own account")

	rr = env.do(t, adminPrincipal(admin), "DELETE", fmt.Sprintf("/api/users/%d", alice.ID), nil)
	assertStatus(t, rr, http.StatusOK)

	got, err := env.store.GetUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Active() {
		t.Error("deleted user should be inactive")
	}
}

func TestUserPermissions_InactiveRoleGrantsNothing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	role := env.seedRole(t, "sales", ordersPerms)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", &role.ID)

	role.Status = model.StatusInactive
	if err := env.store.UpdateRole(context.Background(), role); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}

	rr := env.do(t, adminPrincipal(admin), "GET", fmt.Sprintf("/api/users/%d/permissions", alice.ID), nil)
	assertStatus(t, rr, http.StatusOK)
	var resp userPermissionsResponse
	decodeJSON(t, rr, &resp)
	if resp.RoleActive || resp.RoleName != "sales" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Permissions.Has(access.ModuleOrders, access.OpView) {
		t.Error("inactive role must not grant orders.view")
	}
}

// ---------------------------------------------------------------------------
// Roles
// ---------------------------------------------------------------------------

func TestRoleCreate_NormalizesPermissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)

	rr := env.do(t, adminPrincipal(admin), "POST", "/api/roles", bytes.NewBufferString(
		`{"name":"ops","permissions":{"orders":{"view":true,"edit":"yes"},"bogus":{"view":true}}}`))
	assertStatus(t, rr, http.StatusCreated)

	var role model.Role
	decodeJSON(t, rr, &role)
	if !role.Permissions.Has(access.ModuleOrders, access.OpView) {
		t.Error("orders.view should be granted")
	}
	if role.Permissions.Has(access.ModuleOrders, access.OpEdit) {
		t.Error("non-boolean grant must be dropped")
	}

	rr = env.do(t, adminPrincipal(admin), "POST", "/api/roles", toJSON(t, map[string]string{"description": "x"}))
	assertStatus(t, rr, http.StatusBadRequest)
	assertErrorMessage(t, rr, "Role name is required")
}

func TestRoleDelete_AssignedRole(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	role := env.seedRole(t, "sales", ordersPerms)
	env.seedUser(t, "alice", access.RoleCustomer, "ACME", &role.ID)

	rr := env.do(t, adminPrincipal(admin), "DELETE", fmt.Sprintf("/api/roles/%d", role.ID), nil)
	assertStatus(t, rr, http.StatusConflict)
	assertErrorMessage(t, rr, "Cannot delete role sales: role is assigned to 1 active user(s)")

	unused := env.seedRole(t, "unused", `{}`)
	rr = env.do(t, adminPrincipal(admin), "DELETE", fmt.Sprintf("/api/roles/%d", unused.ID), nil)
	assertStatus(t, rr, http.StatusOK)
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

func TestDashboardSummary(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin", access.RoleAdmin, "", nil)
	alice := env.seedUser(t, "alice", access.RoleCustomer, "ACME", nil)
	env.seedUser(t, "gary", access.RoleCustomer, "GLOBEX", nil)
	env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-1", "customer_name": "Acme", "customer_code": "ACME",
	}, admin.ID)
	env.seedRecord(t, "orders", map[string]interface{}{
		"invoice_number": "INV-2", "customer_name": "Globex", "customer_code": "GLOBEX",
	}, admin.ID)

	rr := env.do(t, customerPrincipal(alice, `{"dashboard":{"view":true}}`), "GET", "/api/dashboard/summary", nil)
	assertStatus(t, rr, http.StatusOK)
	var resp summaryResponse
	decodeJSON(t, rr, &resp)
	if resp.Users.Active != 1 || resp.Resources["orders"] != 1 {
		t.Errorf("customer summary = %+v", resp)
	}
	if resp.Roles != nil {
		t.Error("active_roles should be admin-only")
	}

	rr = env.do(t, adminPrincipal(admin), "GET", "/api/dashboard/summary", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &resp)
	if resp.Users.Active != 3 || resp.Resources["orders"] != 2 || resp.Roles == nil {
		t.Errorf("admin summary = %+v", resp)
	}
}
