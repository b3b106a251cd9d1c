package access

// ScopeKind discriminates the three possible data scopes.
type ScopeKind int

const (
	// ScopeNone matches no rows. It is also the zero value.
	ScopeNone ScopeKind = iota
	// ScopeAll applies no tenant restriction.
	ScopeAll
	// ScopeTenant restricts rows to a single customer code.
	ScopeTenant
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeAll:
		return "all"
	case ScopeTenant:
		return "tenant"
	}
	return "none"
}

// Scope is the effective tenant restriction for a data query.
type Scope struct {
	kind   ScopeKind
	tenant string
}

// AllTenants returns the unrestricted scope.
func AllTenants() Scope { return Scope{kind: ScopeAll} }

// Tenant returns a scope pinned to code. An empty code yields NoTenants.
func Tenant(code string) Scope {
	if code == "" {
		return Scope{kind: ScopeNone}
	}
	return Scope{kind: ScopeTenant, tenant: code}
}

// NoTenants returns the scope that matches nothing.
func NoTenants() Scope { return Scope{kind: ScopeNone} }

func (s Scope) Kind() ScopeKind { return s.kind }

// TenantCode returns the pinned code for ScopeTenant and "" otherwise.
func (s Scope) TenantCode() string { return s.tenant }

func (s Scope) String() string {
	if s.kind == ScopeTenant {
		return "tenant:" + s.tenant
	}
	return s.kind.String()
}

// Allows reports whether a row carrying code is visible in s.
func (s Scope) Allows(code string) bool {
	switch s.kind {
	case ScopeAll:
		return true
	case ScopeTenant:
		return code == s.tenant
	}
	return false
}

// Predicate renders s as a SQL condition on column using "?" placeholders.
// ScopeAll returns an empty condition.
func (s Scope) Predicate(column string) (string, []interface{}) {
	switch s.kind {
	case ScopeAll:
		return "", nil
	case ScopeTenant:
		return column + " = ?", []interface{}{s.tenant}
	}
	return "1 = 0", nil
}

// ResolveScope computes the effective scope for p given the customer code
// named in the request. An empty requested code means none was given.
//
// Admins get exactly what they ask for, or every tenant. Customers are
// pinned to their own code, and any other requested code is rejected
// before data is touched. A customer without a code sees nothing.
func ResolveScope(p *Principal, requested string) (Scope, error) {
	if p == nil {
		return Scope{}, &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		if requested == "" {
			return AllTenants(), nil
		}
		return Tenant(requested), nil
	}

	if !p.HasTenant() {
		if requested == "" {
			return NoTenants(), nil
		}
		return Scope{}, &Error{Kind: KindTenantScopeViolation, Requested: requested}
	}
	if requested != "" && requested != p.TenantCode {
		return Scope{}, &Error{
			Kind:      KindTenantScopeViolation,
			Requested: requested,
			Actual:    p.TenantCode,
		}
	}
	return Tenant(p.TenantCode), nil
}
