package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
)

// ---------------------------------------------------------------------------
// Role CRUD
// ---------------------------------------------------------------------------

const roleColumns = "id, name, description, permissions, status, created_date, modified_date"

type roleRow struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Permissions string    `db:"permissions"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_date"`
	UpdatedAt   time.Time `db:"modified_date"`
}

func (r *roleRow) toModel() *model.Role {
	return &model.Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		Permissions: access.Normalize([]byte(r.Permissions)),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// encodePermissions stores the normalized form so that every row holds the
// full module set.
func encodePermissions(d *access.Document) (string, error) {
	if d == nil {
		d = access.DefaultVocabulary.Empty()
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode permissions: %w", err)
	}
	return string(b), nil
}

// CreateRole inserts a role.
func (s *Store) CreateRole(ctx context.Context, r *model.Role) error {
	perms, err := encodePermissions(r.Permissions)
	if err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = model.StatusActive
	}
	now := s.now()
	id, err := s.insert(ctx, "roles",
		[]string{"name", "description", "permissions", "status", "created_date", "modified_date"},
		[]interface{}{r.Name, r.Description, perms, r.Status, now, now})
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Permissions == nil {
		r.Permissions = access.DefaultVocabulary.Empty()
	}
	return nil
}

func (s *Store) getRole(ctx context.Context, where string, arg interface{}) (*model.Role, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row, s.rebind("SELECT "+roleColumns+" FROM roles WHERE "+where), arg)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return row.toModel(), nil
}

// GetRole returns the role with the given id.
func (s *Store) GetRole(ctx context.Context, id int64) (*model.Role, error) {
	return s.getRole(ctx, "id = ?", id)
}

// GetRoleByName returns the role with the given name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	return s.getRole(ctx, "name = ?", name)
}

// ListRoles returns roles ordered by name. activeOnly hides inactive roles.
func (s *Store) ListRoles(ctx context.Context, activeOnly bool) ([]model.Role, error) {
	q := "SELECT " + roleColumns + " FROM roles"
	var args []interface{}
	if activeOnly {
		q += " WHERE status = ?"
		args = append(args, model.StatusActive)
	}
	q += " ORDER BY name"

	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles := make([]model.Role, len(rows))
	for i := range rows {
		roles[i] = *rows[i].toModel()
	}
	return roles, nil
}

// UpdateRole rewrites a role. Changes apply to the next request of every
// assigned user since principals are resolved per request.
func (s *Store) UpdateRole(ctx context.Context, r *model.Role) error {
	perms, err := encodePermissions(r.Permissions)
	if err != nil {
		return err
	}
	r.UpdatedAt = s.now()
	err = s.execAffected(ctx,
		"UPDATE roles SET name = ?, description = ?, permissions = ?, status = ?, modified_date = ? WHERE id = ?",
		r.Name, r.Description, perms, r.Status, r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// RoleAssignments counts the active users assigned to a role.
func (s *Store) RoleAssignments(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.rebind("SELECT COUNT(*) FROM users WHERE role_id = ? AND status = ?"), id, model.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("count role assignments: %w", err)
	}
	return n, nil
}

// DeactivateRole marks a role inactive. A role still assigned to active users
// is refused with ErrConflict.
func (s *Store) DeactivateRole(ctx context.Context, id int64) error {
	n, err := s.RoleAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: role is assigned to %d active user(s)", ErrConflict, n)
	}
	err = s.execAffected(ctx, "UPDATE roles SET status = ?, modified_date = ? WHERE id = ?", model.StatusInactive, s.now(), id)
	if err != nil {
		return fmt.Errorf("deactivate role: %w", err)
	}
	return nil
}
