package access

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RoleTag is the coarse account type. Admins bypass every permission check.
type RoleTag string

const (
	RoleAdmin    RoleTag = "admin"
	RoleCustomer RoleTag = "customer"
)

// Valid reports whether r is a known role tag.
func (r RoleTag) Valid() bool {
	return r == RoleAdmin || r == RoleCustomer
}

// Principal is the caller of a single request. It is built fresh from the
// verified credential for every request and never mutated afterwards.
type Principal struct {
	UserID int64
	// TenantCode is the customer code the account is pinned to. Empty means
	// the account has none.
	TenantCode string
	Role       RoleTag
	// Document is nil for admins and for customers without an assigned,
	// active role.
	Document *Document
}

// IsAdmin reports whether p carries the admin role tag.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// HasTenant reports whether the account has a customer code.
func (p *Principal) HasTenant() bool {
	return p != nil && p.TenantCode != ""
}

// Claims is the identity extracted from a verified session token.
type Claims struct {
	UserID  int64
	TokenID string
}

// Account is the slice of a stored user the resolver needs.
type Account struct {
	ID           int64
	Role         RoleTag
	RoleID       int64 // 0 when no role is assigned
	CustomerCode string
	Active       bool
}

// RoleRecord is the slice of a stored role the resolver needs.
type RoleRecord struct {
	ID          int64
	Active      bool
	Permissions string
}

// Directory loads accounts and roles. Both methods return a nil record and
// a nil error when the record does not exist.
type Directory interface {
	AccountByID(ctx context.Context, id int64) (*Account, error)
	RoleByID(ctx context.Context, id int64) (*RoleRecord, error)
}

// DocumentCache memoizes normalization keyed by the exact stored text, so a
// changed role is simply a different key.
type DocumentCache struct {
	vocab *Vocabulary
	cache *lru.Cache[string, *Document]
}

// NewDocumentCache creates a cache holding up to size documents.
func NewDocumentCache(vocab *Vocabulary, size int) (*DocumentCache, error) {
	if vocab == nil {
		vocab = DefaultVocabulary
	}
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[string, *Document](size)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	return &DocumentCache{vocab: vocab, cache: c}, nil
}

// Get returns the normalized document for raw, normalizing on a miss.
func (c *DocumentCache) Get(raw string) *Document {
	if d, ok := c.cache.Get(raw); ok {
		return d
	}
	d := c.vocab.Normalize([]byte(raw))
	c.cache.Add(raw, d)
	return d
}

// Len returns the number of cached documents.
func (c *DocumentCache) Len() int {
	return c.cache.Len()
}

// Resolver turns verified claims into a Principal by loading the account
// and its role on every call.
type Resolver struct {
	dir  Directory
	docs *DocumentCache
}

// NewResolver creates a Resolver. A nil cache disables memoization.
func NewResolver(dir Directory, docs *DocumentCache) *Resolver {
	return &Resolver{dir: dir, docs: docs}
}

// Resolve loads the account behind c. Missing accounts yield
// KindUnauthenticated and disabled accounts KindAccountInactive. Storage
// failures are returned wrapped and are not access errors.
func (r *Resolver) Resolve(ctx context.Context, c Claims) (*Principal, error) {
	if c.UserID <= 0 {
		return nil, &Error{Kind: KindUnauthenticated}
	}

	acct, err := r.dir.AccountByID(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", c.UserID, err)
	}
	if acct == nil {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	if !acct.Active {
		return nil, &Error{Kind: KindAccountInactive}
	}

	p := &Principal{
		UserID:     acct.ID,
		TenantCode: acct.CustomerCode,
		Role:       acct.Role,
	}
	if p.Role == RoleAdmin {
		return p, nil
	}
	// Anything that is not an admin is treated as a customer.
	p.Role = RoleCustomer

	if acct.RoleID == 0 {
		return p, nil
	}
	role, err := r.dir.RoleByID(ctx, acct.RoleID)
	if err != nil {
		return nil, fmt.Errorf("load role %d: %w", acct.RoleID, err)
	}
	if role == nil || !role.Active {
		return p, nil
	}
	p.Document = r.normalize(role.Permissions)
	return p, nil
}

func (r *Resolver) normalize(raw string) *Document {
	if r.docs != nil {
		return r.docs.Get(raw)
	}
	return DefaultVocabulary.Normalize([]byte(raw))
}
