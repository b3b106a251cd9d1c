package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/query"
)

// ---------------------------------------------------------------------------
// Generic tenant-scoped records
// ---------------------------------------------------------------------------

// Record is one row of a catalog resource keyed by column name.
type Record map[string]interface{}

// ID returns the record's primary key, or 0 if it cannot be read.
func (r Record) ID() int64 {
	return toInt64(r["id"])
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	// Scope restricts tenant-scoped resources. It is ignored for shared
	// resources such as products.
	Scope access.Scope
	// VisibleOnly applies the resource's visibility rule (e.g. status =
	// 'active'), used for non-admin callers.
	VisibleOnly bool
	// Equals holds exact-match filters on readable columns.
	Equals map[string]string
	Order  string
	Limit  int
	Offset int
}

func (s *Store) selectList(res *model.Resource) string {
	cols := []string{"id"}
	cols = append(cols, res.Columns...)
	if res.Owned() && !res.Writable(res.OwnerColumn) {
		cols = append(cols, res.OwnerColumn)
	}
	cols = append(cols, "created_date", "modified_date")
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.q(c)
	}
	return strings.Join(quoted, ", ")
}

// scopeWhere seeds a Where with the tenant predicate for res.
func (s *Store) scopeWhere(res *model.Resource, scope access.Scope) *query.Where {
	w := &query.Where{}
	if res.TenantScoped() {
		cond, args := scope.Predicate(s.q(res.TenantColumn))
		w.Add(cond, args...)
	}
	return w
}

func (s *Store) filterWhere(res *model.Resource, f RecordFilter) (*query.Where, error) {
	w := s.scopeWhere(res, f.Scope)
	if f.VisibleOnly && res.VisibleColumn != "" {
		w.Eq(s.q(res.VisibleColumn), res.VisibleValue)
	}
	keys := make([]string, 0, len(f.Equals))
	for k := range f.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, col := range keys {
		if err := query.ValidateIdentifier(col); err != nil || !res.Readable(col) {
			return nil, fmt.Errorf("%w: cannot filter on %q", ErrInvalidInput, col)
		}
		w.Eq(s.q(col), f.Equals[col])
	}
	return w, nil
}

// ListRecords returns the rows of res matching f and the total before
// pagination.
func (s *Store) ListRecords(ctx context.Context, res *model.Resource, f RecordFilter) ([]Record, int64, error) {
	w, err := s.filterWhere(res, f)
	if err != nil {
		return nil, 0, err
	}

	order := f.Order
	if order == "" {
		order = res.DefaultOrder
	}
	if order == "" {
		order = "id DESC"
	}
	clauses, err := query.ParseOrderClause(order, res.Readable)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	table := s.q(res.Table)
	var total int64
	if err := s.db.GetContext(ctx, &total, s.rebind("SELECT COUNT(*) FROM "+table+w.SQL()), w.Args()...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", res.Name, err)
	}

	q := "SELECT " + s.selectList(res) + " FROM " + table + w.SQL() + " " + query.BuildOrderSQL(clauses, s.q)
	if page := s.conn.Paginate(f.Limit, f.Offset); page != "" {
		q += " " + page
	}
	rows, err := s.db.QueryxContext(ctx, s.rebind(q), w.Args()...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", res.Name, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", res.Name, err)
	}
	return records, total, nil
}

// CountRecords counts rows of res in scope. VisibleOnly is honoured.
func (s *Store) CountRecords(ctx context.Context, res *model.Resource, f RecordFilter) (int64, error) {
	w, err := s.filterWhere(res, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, s.rebind("SELECT COUNT(*) FROM "+s.q(res.Table)+w.SQL()), w.Args()...); err != nil {
		return 0, fmt.Errorf("count %s: %w", res.Name, err)
	}
	return n, nil
}

// GetRecord returns one row of res. Rows outside scope are reported as
// ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, res *model.Resource, scope access.Scope, id int64) (Record, error) {
	w := s.scopeWhere(res, scope)
	w.Eq(s.q("id"), id)
	rows, err := s.db.QueryxContext(ctx, s.rebind("SELECT "+s.selectList(res)+" FROM "+s.q(res.Table)+w.SQL()), w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", res.Name, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", res.Name, err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// RecordOwner returns the creating user of a row, or 0 when the resource
// does not track owners or the row has none.
func (s *Store) RecordOwner(ctx context.Context, res *model.Resource, scope access.Scope, id int64) (int64, error) {
	if !res.Owned() {
		return 0, nil
	}
	w := s.scopeWhere(res, scope)
	w.Eq(s.q("id"), id)
	var owner sql.NullInt64
	err := s.db.GetContext(ctx, &owner, s.rebind("SELECT "+s.q(res.OwnerColumn)+" FROM "+s.q(res.Table)+w.SQL()), w.Args()...)
	if notFound(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get %s owner: %w", res.Name, err)
	}
	return owner.Int64, nil
}

// checkWritable returns the sorted columns of values after rejecting
// unknown columns and cleaning each value in place.
func checkWritable(res *model.Resource, values map[string]interface{}) ([]string, error) {
	cols := make([]string, 0, len(values))
	for col, v := range values {
		if !res.Writable(col) {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidInput, col)
		}
		clean, err := query.ColumnValue(col, v, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		values[col] = clean
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// CreateRecord inserts a row into res, stamping the owner column with
// ownerID when the resource tracks owners.
func (s *Store) CreateRecord(ctx context.Context, res *model.Resource, values map[string]interface{}, ownerID int64) (Record, error) {
	cols, err := checkWritable(res, values)
	if err != nil {
		return nil, err
	}
	for _, req := range res.Required {
		if isBlank(values[req]) {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, req)
		}
	}

	args := make([]interface{}, 0, len(cols)+3)
	for _, c := range cols {
		args = append(args, values[c])
	}
	if res.Owned() && ownerID > 0 {
		cols = append(cols, res.OwnerColumn)
		args = append(args, ownerID)
	}
	now := s.now()
	cols = append(cols, "created_date", "modified_date")
	args = append(args, now, now)

	id, err := s.insert(ctx, res.Table, cols, args)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", res.Name, err)
	}
	return s.GetRecord(ctx, res, access.AllTenants(), id)
}

// UpdateRecord applies values to one row in scope and returns the result.
func (s *Store) UpdateRecord(ctx context.Context, res *model.Resource, scope access.Scope, id int64, values map[string]interface{}) (Record, error) {
	cols, err := checkWritable(res, values)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	for _, req := range res.Required {
		if v, ok := values[req]; ok && isBlank(v) {
			return nil, fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, req)
		}
	}

	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+3)
	for _, c := range cols {
		sets = append(sets, s.q(c)+" = ?")
		args = append(args, values[c])
	}
	sets = append(sets, s.q("modified_date")+" = ?")
	args = append(args, s.now())

	w := s.scopeWhere(res, scope)
	w.Eq(s.q("id"), id)
	args = append(args, w.Args()...)

	q := "UPDATE " + s.q(res.Table) + " SET " + strings.Join(sets, ", ") + w.SQL()
	if err := s.execAffected(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("update %s: %w", res.Name, err)
	}
	return s.GetRecord(ctx, res, scope, id)
}

// DeleteRecord removes one row in scope.
func (s *Store) DeleteRecord(ctx context.Context, res *model.Resource, scope access.Scope, id int64) error {
	w := s.scopeWhere(res, scope)
	w.Eq(s.q("id"), id)
	if err := s.execAffected(ctx, "DELETE FROM "+s.q(res.Table)+w.SQL(), w.Args()...); err != nil {
		return fmt.Errorf("delete %s: %w", res.Name, err)
	}
	return nil
}

func scanRecords(rows *sqlx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, Record(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
