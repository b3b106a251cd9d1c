package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/query"
)

// ---------------------------------------------------------------------------
// User CRUD
// ---------------------------------------------------------------------------

const userColumns = `id, username, email_id, password_hash, first_name, last_name, phone,
	customer_code, role, role_id, status, last_login_datetime, created_by,
	created_date, modified_date`

// userRow maps the users table. Nullable columns are scanned into sql.Null*
// and flattened by toModel.
type userRow struct {
	ID           int64          `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email_id"`
	PasswordHash string         `db:"password_hash"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Phone        string         `db:"phone"`
	CustomerCode sql.NullString `db:"customer_code"`
	Role         string         `db:"role"`
	RoleID       sql.NullInt64  `db:"role_id"`
	Status       string         `db:"status"`
	LastLoginAt  sql.NullTime   `db:"last_login_datetime"`
	CreatedBy    sql.NullInt64  `db:"created_by"`
	CreatedAt    time.Time      `db:"created_date"`
	UpdatedAt    time.Time      `db:"modified_date"`
}

func (r *userRow) toModel() *model.User {
	u := &model.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone,
		CustomerCode: r.CustomerCode.String,
		Role:         access.RoleTag(r.Role),
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.RoleID.Valid {
		id := r.RoleID.Int64
		u.RoleID = &id
	}
	if r.CreatedBy.Valid {
		id := r.CreatedBy.Int64
		u.CreatedBy = &id
	}
	if r.LastLoginAt.Valid {
		t := r.LastLoginAt.Time
		u.LastLoginAt = &t
	}
	return u
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil || *p == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// UserFilter narrows ListUsers. Scope is always applied to customer_code.
type UserFilter struct {
	Scope  access.Scope
	Role   access.RoleTag
	Status string
	Search string
	Limit  int
	Offset int
}

// CreateUser inserts a new user. PasswordHash must already be hashed.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := s.now()
	if u.Status == "" {
		u.Status = model.StatusActive
	}
	if u.Role == "" {
		u.Role = access.RoleCustomer
	}
	cols := []string{
		"username", "email_id", "password_hash", "first_name", "last_name", "phone",
		"customer_code", "role", "role_id", "status", "created_by",
		"created_date", "modified_date",
	}
	args := []interface{}{
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		nullString(u.CustomerCode), string(u.Role), nullInt(u.RoleID), u.Status, nullInt(u.CreatedBy),
		now, now,
	}
	id, err := s.insert(ctx, "users", cols, args)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.rebind("SELECT "+userColumns+" FROM users WHERE "+where), arg)
	if notFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toModel(), nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByUsername looks a user up by username, case-sensitively.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

// ListUsers returns users visible in the filter's scope, newest first, and
// the total number matching before pagination.
func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]model.User, int64, error) {
	var w query.Where
	cond, args := f.Scope.Predicate("customer_code")
	w.Add(cond, args...)
	if f.Role != "" {
		w.Eq("role", string(f.Role))
	}
	if f.Status != "" {
		w.Eq("status", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		w.Add("LOWER(username) LIKE ? OR LOWER(email_id) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.rebind("SELECT COUNT(*) FROM users"+w.SQL()), w.Args()...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	q := "SELECT " + userColumns + " FROM users" + w.SQL() + " ORDER BY id DESC"
	if page := s.conn.Paginate(f.Limit, f.Offset); page != "" {
		q += " " + page
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(q), w.Args()...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users := make([]model.User, len(rows))
	for i := range rows {
		users[i] = *rows[i].toModel()
	}
	return users, total, nil
}

// UpdateUser writes the profile, role and status fields of u. The password
// hash is left untouched; use UpdatePassword.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	u.UpdatedAt = s.now()
	err := s.execAffected(ctx, `UPDATE users SET username = ?, email_id = ?, first_name = ?, last_name = ?,
		phone = ?, customer_code = ?, role = ?, role_id = ?, status = ?, modified_date = ?
		WHERE id = ?`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Phone, nullString(u.CustomerCode),
		string(u.Role), nullInt(u.RoleID), u.Status, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id int64, hash string) error {
	err := s.execAffected(ctx, "UPDATE users SET password_hash = ?, modified_date = ? WHERE id = ?", hash, s.now(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeactivateUser marks a user inactive. Users are never hard-deleted so that
// login history and ownership stay intact.
func (s *Store) DeactivateUser(ctx context.Context, id int64) error {
	err := s.execAffected(ctx, "UPDATE users SET status = ?, modified_date = ? WHERE id = ?", model.StatusInactive, s.now(), id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// TouchLastLogin stamps the user's last successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if err := s.execAffected(ctx, "UPDATE users SET last_login_datetime = ? WHERE id = ?", at, id); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// HasAdmin reports whether at least one active admin exists.
func (s *Store) HasAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.rebind("SELECT COUNT(*) FROM users WHERE role = ? AND status = ?"),
		string(access.RoleAdmin), model.StatusActive)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// CountUsers returns the number of users in scope with the given status.
// An empty status counts all.
func (s *Store) CountUsers(ctx context.Context, scope access.Scope, status string) (int64, error) {
	var w query.Where
	cond, args := scope.Predicate("customer_code")
	w.Add(cond, args...)
	if status != "" {
		w.Eq("status", status)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, s.rebind("SELECT COUNT(*) FROM users"+w.SQL()), w.Args()...); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
