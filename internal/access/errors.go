package access

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a denied access decision.
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindAccountInactive
	KindPermissionDenied
	KindModuleAccessDenied
	KindOwnershipRequired
	KindTenantScopeViolation
	KindAdminRequired
)

var kindNames = map[Kind]string{
	KindUnauthenticated:      "unauthenticated",
	KindAccountInactive:      "account_inactive",
	KindPermissionDenied:     "permission_denied",
	KindModuleAccessDenied:   "module_access_denied",
	KindOwnershipRequired:    "ownership_required",
	KindTenantScopeViolation: "tenant_scope_violation",
	KindAdminRequired:        "admin_required",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Sentinels matched with errors.Is against an *Error of the same kind.
var (
	ErrUnauthenticated      = errors.New("authentication required")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrModuleAccessDenied   = errors.New("module access denied")
	ErrOwnershipRequired    = errors.New("ownership required")
	ErrTenantScopeViolation = errors.New("tenant scope violation")
	ErrAdminRequired        = errors.New("admin access required")
)

var kindSentinels = map[Kind]error{
	KindUnauthenticated:      ErrUnauthenticated,
	KindAccountInactive:      ErrAccountInactive,
	KindPermissionDenied:     ErrPermissionDenied,
	KindModuleAccessDenied:   ErrModuleAccessDenied,
	KindOwnershipRequired:    ErrOwnershipRequired,
	KindTenantScopeViolation: ErrTenantScopeViolation,
	KindAdminRequired:        ErrAdminRequired,
}

// Error is a denied access decision. It is terminal for the request.
type Error struct {
	Kind Kind

	// Required holds the missing permission(s) for KindPermissionDenied.
	Required []Permission
	// Module is set for KindModuleAccessDenied.
	Module Module
	// Requested and Actual are the tenant codes for KindTenantScopeViolation.
	// Actual is empty when the account has no customer code.
	Requested string
	Actual    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnauthenticated:
		return "Authentication required"
	case KindAccountInactive:
		return "Account is inactive"
	case KindPermissionDenied:
		if len(e.Required) == 1 {
			return "Permission denied. Required permission: " + e.Required[0].String()
		}
		names := make([]string, len(e.Required))
		for i, p := range e.Required {
			names[i] = p.String()
		}
		return "Permission denied. Required permissions: " + strings.Join(names, " or ")
	case KindModuleAccessDenied:
		return "Access denied. No permissions for module: " + string(e.Module)
	case KindOwnershipRequired:
		return "Access denied. You can only access your own resources."
	case KindTenantScopeViolation:
		if e.Actual == "" {
			return "Access denied. No customer code is assigned to this account"
		}
		return "Access denied. Requested customer code " + e.Requested + " does not match " + e.Actual
	case KindAdminRequired:
		return "Admin access required"
	}
	return "Access denied"
}

// Unwrap returns the sentinel for the error's kind.
func (e *Error) Unwrap() error {
	return kindSentinels[e.Kind]
}

// HTTPStatus maps the kind to a response code: 401 for identity failures,
// 403 for everything else.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthenticated, KindAccountInactive:
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// Context returns the structured details carried in an error response.
func (e *Error) Context() map[string]interface{} {
	ctx := map[string]interface{}{"kind": e.Kind.String()}
	switch e.Kind {
	case KindPermissionDenied:
		req := make([]string, len(e.Required))
		for i, p := range e.Required {
			req[i] = p.String()
		}
		ctx["required"] = req
		if len(e.Required) == 1 {
			ctx["module"] = string(e.Required[0].Module)
			ctx["operation"] = string(e.Required[0].Operation)
		}
	case KindModuleAccessDenied:
		ctx["module"] = string(e.Module)
	case KindTenantScopeViolation:
		ctx["requested"] = e.Requested
		ctx["actual"] = e.Actual
	}
	return ctx
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	ae, ok := AsError(err)
	return ok && ae.Kind == k
}

func denyPermission(perms ...Permission) *Error {
	return &Error{Kind: KindPermissionDenied, Required: perms}
}
