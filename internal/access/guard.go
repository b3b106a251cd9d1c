package access

import (
	"context"
	"fmt"
)

// OwnerLookup returns the user id that owns the resource under check. A
// zero id means the resource has no owner.
type OwnerLookup func(ctx context.Context) (int64, error)

// isAdmin is the single admin bypass shared by every guard mode.
func isAdmin(p *Principal) bool {
	return p.Role == RoleAdmin
}

// Require allows p iff it is an admin or its document grants module.op.
func Require(p *Principal, m Module, op Operation) error {
	if p == nil {
		return &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		return nil
	}
	if p.Document.Has(m, op) {
		return nil
	}
	return denyPermission(Perm(m, op))
}

// RequireModuleAccess allows p iff it is an admin or has at least one
// operation on m.
func RequireModuleAccess(p *Principal, m Module) error {
	if p == nil {
		return &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		return nil
	}
	if p.Document.HasAny(m) {
		return nil
	}
	return &Error{Kind: KindModuleAccessDenied, Module: m}
}

// RequireAny allows p iff it is an admin or holds at least one of perms.
// An empty perms list denies every non-admin.
func RequireAny(p *Principal, perms ...Permission) error {
	if p == nil {
		return &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		return nil
	}
	for _, perm := range perms {
		if p.Document.Has(perm.Module, perm.Operation) {
			return nil
		}
	}
	return denyPermission(perms...)
}

// RequireOwnerOrAdmin allows admins without calling lookup. For everyone
// else lookup runs exactly once; the check passes only when the returned
// owner is p itself. A lookup failure is returned wrapped and is neither an
// allow nor an ownership denial.
func RequireOwnerOrAdmin(ctx context.Context, p *Principal, lookup OwnerLookup) error {
	if p == nil {
		return &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		return nil
	}
	owner, err := lookup(ctx)
	if err != nil {
		return fmt.Errorf("resolve resource owner: %w", err)
	}
	if owner != 0 && owner == p.UserID {
		return nil
	}
	return &Error{Kind: KindOwnershipRequired}
}

// RequireAdmin allows only admins.
func RequireAdmin(p *Principal) error {
	if p == nil {
		return &Error{Kind: KindUnauthenticated}
	}
	if isAdmin(p) {
		return nil
	}
	return &Error{Kind: KindAdminRequired}
}
