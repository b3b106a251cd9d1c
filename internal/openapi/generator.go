// Package openapi builds the OpenAPI document for the portal API. Every
// operation records the access rule that guards it in the
// x-required-permission extension.
package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
)

// Access rules that are not a single module permission.
const (
	RulePublic        = "public"
	RuleAuthenticated = "authenticated"
	RuleAdmin         = "admin"
)

// PermissionExtension is the operation extension naming the access rule.
const PermissionExtension = "x-required-permission"

// Generate returns the OpenAPI 3.1 document for the portal API with one set
// of CRUD paths per catalog resource.
func Generate(baseURL, version string, resources []model.Resource) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Customer Portal API",
			Description: "Role-based, tenant-scoped API for the customer portal.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}
	doc.Paths = openapi3.NewPaths()

	addSharedSchemas(doc)
	addAuthPaths(doc)
	addUserPaths(doc)
	addRolePaths(doc)
	for _, res := range resources {
		addResourcePaths(doc, res)
	}
	addCustomerPaths(doc)
	addDashboardPaths(doc)

	// Every ref points into doc.Components, so resolution only fails when a
	// schema name is misspelled here.
	if err := openapi3.NewLoader().ResolveRefsIn(doc, nil); err != nil {
		panic(fmt.Sprintf("openapi: %v", err))
	}
	return doc
}

// RequiredPermission returns the access rule recorded on op.
func RequiredPermission(op *openapi3.Operation) string {
	if op == nil {
		return ""
	}
	s, _ := op.Extensions[PermissionExtension].(string)
	return s
}

// ─── Schemas ────────────────────────────────────────────────────────────────

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func object(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func scalar(typ, format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}, Format: format}}
}

func arrayOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func listOf(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return object(openapi3.Schemas{
		"resource": arrayOf(items),
		"meta":     ref("ListMeta"),
	})
}

func addSharedSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas
	s["ErrorResponse"] = object(openapi3.Schemas{
		"error": object(openapi3.Schemas{
			"code":    scalar("integer", "int32"),
			"message": scalar("string", ""),
			"context": scalar("object", ""),
		}, "code", "message"),
	}, "error")
	s["ListMeta"] = object(openapi3.Schemas{
		"count":   scalar("integer", "int32"),
		"total":   scalar("integer", "int64"),
		"limit":   scalar("integer", "int32"),
		"offset":  scalar("integer", "int32"),
		"took_ms": scalar("number", "double"),
	})

	modules := openapi3.Schemas{}
	for _, m := range access.DefaultVocabulary.Modules() {
		ops := openapi3.Schemas{}
		for _, op := range access.DefaultVocabulary.Applicable(m) {
			ops[string(op)] = scalar("boolean", "")
		}
		modules[string(m)] = object(ops)
	}
	s["PermissionDocument"] = object(modules)

	s["User"] = object(openapi3.Schemas{
		"id":                  scalar("integer", "int64"),
		"username":            scalar("string", ""),
		"email_id":            scalar("string", ""),
		"first_name":          scalar("string", ""),
		"last_name":           scalar("string", ""),
		"phone":               scalar("string", ""),
		"customer_code":       scalar("string", ""),
		"role":                &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: []any{"admin", "customer"}}},
		"role_id":             scalar("integer", "int64"),
		"status":              scalar("string", ""),
		"last_login_datetime": scalar("string", "date-time"),
		"created_date":        scalar("string", "date-time"),
		"modified_date":       scalar("string", "date-time"),
	})
	s["Role"] = object(openapi3.Schemas{
		"id":            scalar("integer", "int64"),
		"name":          scalar("string", ""),
		"description":   scalar("string", ""),
		"status":        scalar("string", ""),
		"permissions":   ref("PermissionDocument"),
		"created_date":  scalar("string", "date-time"),
		"modified_date": scalar("string", "date-time"),
	})
}

// resourceSchemas registers the record, create and update schemas of res.
func resourceSchemas(doc *openapi3.T, res model.Resource) string {
	name := schemaName(res.Name)
	record := openapi3.Schemas{
		"id":            columnSchema(res, "id"),
		"created_date":  columnSchema(res, "created_date"),
		"modified_date": columnSchema(res, "modified_date"),
	}
	if res.Owned() {
		record[res.OwnerColumn] = columnSchema(res, res.OwnerColumn)
	}
	create := openapi3.Schemas{}
	for _, col := range res.Columns {
		record[col] = columnSchema(res, col)
		create[col] = columnSchema(res, col)
	}
	doc.Components.Schemas[name] = object(record)
	doc.Components.Schemas[name+"Create"] = object(create, res.Required...)
	doc.Components.Schemas[name+"Update"] = object(create)
	return name
}

func columnSchema(res model.Resource, col string) *openapi3.SchemaRef {
	m := MapDBType(res.ColumnType(col))
	return scalar(m.Type, m.Format)
}

// ─── Operations ─────────────────────────────────────────────────────────────

type operation struct {
	tag, id, summary string
	rule             string
	params           openapi3.Parameters
	body             *openapi3.SchemaRef
	status           string
	response         *openapi3.SchemaRef
}

func (o operation) build() *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{o.tag},
		Summary:     o.summary,
		OperationID: o.id,
		Parameters:  o.params,
		Responses:   newResponses(o.status, o.summary, o.response, o.rule),
		Extensions:  map[string]any{PermissionExtension: o.rule},
	}
	if o.rule != RulePublic {
		op.Description = "Requires " + o.rule + "."
	} else {
		op.Security = &openapi3.SecurityRequirements{}
	}
	if o.body != nil {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(o.body)}
	}
	return op
}

func perm(m access.Module, op access.Operation) string {
	return access.Perm(m, op).String()
}

func pathParam(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema())}
}

func queryParam(name, desc string, schema *openapi3.Schema) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(name).WithDescription(desc).WithSchema(schema)}
}

// listParameters returns the query parameters shared by list endpoints.
func listParameters() openapi3.Parameters {
	return openapi3.Parameters{
		queryParam("limit", "Maximum number of records to return (default 25, max 1000).", openapi3.NewIntegerSchema()),
		queryParam("offset", "Number of records to skip.", openapi3.NewIntegerSchema()),
		queryParam("order", "Sort order, e.g. \"invoice_date DESC\".", openapi3.NewStringSchema()),
		queryParam("status", "Exact match on status.", openapi3.NewStringSchema()),
		queryParam("include_count", "Include the total count in meta.", openapi3.NewBoolSchema()),
		queryParam("customer_code", "Restrict to one customer. Customers may only name their own code.", openapi3.NewStringSchema()),
	}
}

func success() *openapi3.SchemaRef {
	return object(openapi3.Schemas{
		"success": scalar("boolean", ""),
		"message": scalar("string", ""),
	})
}

func addAuthPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/auth/login", &openapi3.PathItem{
		Post: operation{
			tag: "auth", id: "login", summary: "Sign in", rule: RulePublic,
			body: object(openapi3.Schemas{
				"username": scalar("string", ""),
				"password": scalar("string", ""),
			}, "username", "password"),
			status: "200",
			response: object(openapi3.Schemas{
				"token":      scalar("string", ""),
				"token_type": scalar("string", ""),
				"expires_in": scalar("integer", "int32"),
				"expires_at": scalar("string", "date-time"),
				"user":       ref("User"),
			}),
		}.build(),
	})
	doc.Paths.Set("/api/auth/logout", &openapi3.PathItem{
		Post: operation{tag: "auth", id: "logout", summary: "Revoke the current token",
			rule: RuleAuthenticated, status: "200", response: success()}.build(),
	})
	doc.Paths.Set("/api/auth/profile", &openapi3.PathItem{
		Get: operation{tag: "auth", id: "get_profile", summary: "Current account",
			rule: RuleAuthenticated, status: "200", response: ref("User")}.build(),
		Put: operation{tag: "auth", id: "update_profile", summary: "Update contact details",
			rule: RuleAuthenticated, status: "200", response: ref("User"),
			body: object(openapi3.Schemas{
				"email_id":   scalar("string", ""),
				"first_name": scalar("string", ""),
				"last_name":  scalar("string", ""),
				"phone":      scalar("string", ""),
			})}.build(),
	})
	doc.Paths.Set("/api/auth/change-password", &openapi3.PathItem{
		Put: operation{tag: "auth", id: "change_password", summary: "Change password",
			rule: RuleAuthenticated, status: "200", response: success(),
			body: object(openapi3.Schemas{
				"old_password": scalar("string", ""),
				"new_password": scalar("string", ""),
			}, "old_password", "new_password")}.build(),
	})
	doc.Paths.Set("/api/auth/my-role-permissions", &openapi3.PathItem{
		Get: operation{tag: "auth", id: "my_role_permissions", summary: "Permissions of the caller's role",
			rule: RuleAuthenticated, status: "200",
			response: object(openapi3.Schemas{
				"hasRole":     scalar("boolean", ""),
				"role":        ref("Role"),
				"permissions": ref("PermissionDocument"),
				"message":     scalar("string", ""),
			})}.build(),
	})
}

func addUserPaths(doc *openapi3.T) {
	m := access.ModuleUsers
	params := append(listParameters(),
		queryParam("role", "Filter by role tag.", openapi3.NewStringSchema()),
		queryParam("search", "Substring match on username, email and name.", openapi3.NewStringSchema()),
	)
	doc.Paths.Set("/api/users", &openapi3.PathItem{
		Get: operation{tag: "users", id: "list_users", summary: "List users",
			rule: perm(m, access.OpView), params: params, status: "200", response: listOf(ref("User"))}.build(),
		Post: operation{tag: "users", id: "create_user", summary: "Create a user",
			rule: perm(m, access.OpAdd), body: ref("User"), status: "201", response: ref("User")}.build(),
	})
	id := openapi3.Parameters{pathParam("id")}
	doc.Paths.Set("/api/users/{id}", &openapi3.PathItem{
		Get: operation{tag: "users", id: "get_user", summary: "Get a user",
			rule: perm(m, access.OpView), params: id, status: "200", response: ref("User")}.build(),
		Put: operation{tag: "users", id: "update_user", summary: "Update a user",
			rule: perm(m, access.OpEdit), params: id, body: ref("User"), status: "200", response: ref("User")}.build(),
		Delete: operation{tag: "users", id: "delete_user", summary: "Deactivate a user",
			rule: perm(m, access.OpDelete), params: id, status: "200", response: success()}.build(),
	})
	doc.Paths.Set("/api/users/{id}/permissions", &openapi3.PathItem{
		Get: operation{tag: "users", id: "get_user_permissions", summary: "Effective permissions of a user",
			rule: perm(m, access.OpView), params: id, status: "200", response: ref("PermissionDocument")}.build(),
	})
}

func addRolePaths(doc *openapi3.T) {
	m := access.ModuleRoles
	doc.Paths.Set("/api/roles", &openapi3.PathItem{
		Get: operation{tag: "roles", id: "list_roles", summary: "List roles",
			rule: perm(m, access.OpView), status: "200", response: listOf(ref("Role"))}.build(),
		Post: operation{tag: "roles", id: "create_role", summary: "Create a role",
			rule: perm(m, access.OpAdd), body: ref("Role"), status: "201", response: ref("Role")}.build(),
	})
	doc.Paths.Set("/api/roles/active", &openapi3.PathItem{
		Get: operation{tag: "roles", id: "list_active_roles", summary: "List active roles",
			rule: RuleAuthenticated, status: "200", response: listOf(ref("Role"))}.build(),
	})
	id := openapi3.Parameters{pathParam("id")}
	doc.Paths.Set("/api/roles/{id}", &openapi3.PathItem{
		Get: operation{tag: "roles", id: "get_role", summary: "Get a role",
			rule: perm(m, access.OpView), params: id, status: "200", response: ref("Role")}.build(),
		Put: operation{tag: "roles", id: "update_role", summary: "Update a role",
			rule: perm(m, access.OpEdit), params: id, body: ref("Role"), status: "200", response: ref("Role")}.build(),
		Delete: operation{tag: "roles", id: "delete_role", summary: "Deactivate a role",
			rule: perm(m, access.OpDelete), params: id, status: "200", response: success()}.build(),
	})
}

// addResourcePaths generates the CRUD paths for one catalog resource.
func addResourcePaths(doc *openapi3.T, res model.Resource) {
	name := resourceSchemas(doc, res)
	tag := res.Name
	id := strings.ReplaceAll(res.Name, "-", "_")
	rule := func(op access.Operation) string {
		switch {
		case res.Guarded():
			return perm(res.Module, op)
		case op == access.OpView:
			return RuleAuthenticated
		default:
			return RuleAdmin
		}
	}
	writeRule := func(op access.Operation) string {
		r := rule(op)
		if res.OwnerOnlyWrites {
			r += " and ownership"
		}
		return r
	}

	doc.Paths.Set("/api/"+res.Name, &openapi3.PathItem{
		Get: operation{tag: tag, id: "list_" + id, summary: fmt.Sprintf("List %s", res.Label),
			rule: rule(access.OpView), params: listParameters(),
			status: "200", response: listOf(ref(name))}.build(),
		Post: operation{tag: tag, id: "create_" + id, summary: fmt.Sprintf("Create %s record", res.Label),
			rule: rule(access.OpAdd), body: ref(name + "Create"),
			status: "201", response: ref(name)}.build(),
	})
	if res.Feed {
		limit := openapi3.Parameters{
			queryParam("limit", "Number of items to return (default 5, max 20).", openapi3.NewIntegerSchema()),
		}
		doc.Paths.Set("/api/"+res.Name+"/latest", &openapi3.PathItem{
			Get: operation{tag: tag, id: "latest_" + id, summary: fmt.Sprintf("Latest %s", res.Label),
				rule: rule(access.OpView), params: limit, status: "200", response: listOf(ref(name))}.build(),
		})
	}
	params := openapi3.Parameters{pathParam("id")}
	doc.Paths.Set("/api/"+res.Name+"/{id}", &openapi3.PathItem{
		Get: operation{tag: tag, id: "get_" + id, summary: fmt.Sprintf("Get %s record", res.Label),
			rule: rule(access.OpView), params: params, status: "200", response: ref(name)}.build(),
		Put: operation{tag: tag, id: "update_" + id, summary: fmt.Sprintf("Update %s record", res.Label),
			rule: writeRule(access.OpEdit), params: params, body: ref(name + "Update"),
			status: "200", response: ref(name)}.build(),
		Delete: operation{tag: tag, id: "delete_" + id, summary: fmt.Sprintf("Delete %s record", res.Label),
			rule: writeRule(access.OpDelete), params: params, status: "200", response: success()}.build(),
	})
}

func addCustomerPaths(doc *openapi3.T) {
	code := pathParam("customerCode")
	overviewRule := strings.Join([]string{
		perm(access.ModuleOrders, access.OpView),
		perm(access.ModulePayments, access.OpView),
		perm(access.ModuleInvoiceDelivery, access.OpView),
	}, " or ")
	doc.Paths.Set("/api/customer/{customerCode}/overview", &openapi3.PathItem{
		Get: operation{tag: "customer", id: "customer_overview", summary: "Record counts for one customer",
			rule: overviewRule, params: openapi3.Parameters{code}, status: "200",
			response: object(openapi3.Schemas{
				"customer_code": scalar("string", ""),
				"counts":        scalar("object", ""),
			})}.build(),
	})
	doc.Paths.Set("/api/customer/{customerCode}/{resource}", &openapi3.PathItem{
		Get: operation{tag: "customer", id: "customer_list", summary: "List one customer's records",
			rule: "any permission on the resource's module",
			params: append(openapi3.Parameters{code, pathParam("resource")}, listParameters()...),
			status: "200", response: listOf(scalar("object", ""))}.build(),
	})
	doc.Paths.Set("/api/customer/{customerCode}/{resource}/{id}", &openapi3.PathItem{
		Get: operation{tag: "customer", id: "customer_get", summary: "Get one of a customer's records",
			rule:   "any permission on the resource's module",
			params: openapi3.Parameters{code, pathParam("resource"), pathParam("id")},
			status: "200", response: scalar("object", "")}.build(),
	})
}

func addDashboardPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/dashboard/summary", &openapi3.PathItem{
		Get: operation{tag: "dashboard", id: "dashboard_summary", summary: "Counts under the caller's scope",
			rule:   perm(access.ModuleDashboard, access.OpView),
			params: openapi3.Parameters{queryParam("customer_code", "Restrict to one customer.", openapi3.NewStringSchema())},
			status: "200", response: scalar("object", "")}.build(),
	})
	doc.Paths.Set("/api/admin/login-logs", &openapi3.PathItem{
		Get: operation{tag: "admin", id: "login_logs", summary: "Login history",
			rule: RuleAdmin,
			params: openapi3.Parameters{
				queryParam("user_id", "Only this user's sessions.", openapi3.NewIntegerSchema()),
				queryParam("limit", "Maximum number of entries.", openapi3.NewIntegerSchema()),
				queryParam("offset", "Entries to skip.", openapi3.NewIntegerSchema()),
			},
			status: "200", response: listOf(scalar("object", ""))}.build(),
	})
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds the success response plus the error responses the
// access rule can produce.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, rule string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Delete("default")

	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(schema),
	})

	errorRef := ref("ErrorResponse")
	addError := func(code, desc string) {
		responses.Set(code, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchemaRef(errorRef),
		})
	}
	addError("400", "Bad request")
	if rule != RulePublic {
		addError("401", "Authentication required")
	}
	if rule != RulePublic && rule != RuleAuthenticated {
		addError("403", "Access denied")
	}
	addError("404", "Not found")
	addError("500", "Internal server error")
	return responses
}

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// schemaName converts a resource name like "market-reports" to
// "MarketReports".
func schemaName(name string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' }) {
		b.WriteString(capitalize(part))
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
