package store

import (
	"context"
	"errors"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
)

// Directory adapts the store to access.Directory.
type Directory struct {
	s *Store
}

// Directory returns the access.Directory view of s.
func (s *Store) Directory() *Directory {
	return &Directory{s: s}
}

// AccountByID implements access.Directory.
func (d *Directory) AccountByID(ctx context.Context, id int64) (*access.Account, error) {
	u, err := d.s.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a := &access.Account{
		ID:           u.ID,
		Role:         u.Role,
		CustomerCode: u.CustomerCode,
		Active:       u.Active(),
	}
	if u.RoleID != nil {
		a.RoleID = *u.RoleID
	}
	return a, nil
}

// RoleByID implements access.Directory. The raw stored permission text is
// passed through so the resolver can normalize and cache it.
func (d *Directory) RoleByID(ctx context.Context, id int64) (*access.RoleRecord, error) {
	var row roleRow
	err := d.s.db.GetContext(ctx, &row, d.s.rebind("SELECT "+roleColumns+" FROM roles WHERE id = ?"), id)
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &access.RoleRecord{
		ID:          row.ID,
		Active:      row.Status == model.StatusActive,
		Permissions: row.Permissions,
	}, nil
}

var _ access.Directory = (*Directory)(nil)
