package query

import (
	"fmt"
	"strings"
)

// OrderClause is a single validated ORDER BY term.
type OrderClause struct {
	Column    string
	Direction string // "ASC" or "DESC"
}

func (o OrderClause) String() string {
	return o.Column + " " + o.Direction
}

// ParseOrderClause parses "col [ASC|DESC], ..." and checks every column
// against allowed. A nil allowed accepts any valid identifier.
func ParseOrderClause(order string, allowed func(string) bool) ([]OrderClause, error) {
	order = strings.TrimSpace(order)
	if order == "" {
		return nil, nil
	}

	parts := strings.Split(order, ",")
	clauses := make([]OrderClause, 0, len(parts))
	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			return nil, fmt.Errorf("invalid order clause %q: expected 'column [ASC|DESC]'", strings.TrimSpace(part))
		}

		col := tokens[0]
		if err := ValidateIdentifier(col); err != nil {
			return nil, fmt.Errorf("invalid order column: %w", err)
		}
		if allowed != nil && !allowed(col) {
			return nil, fmt.Errorf("cannot order by column %q", col)
		}

		dir := "ASC"
		if len(tokens) == 2 {
			switch d := strings.ToUpper(tokens[1]); d {
			case "ASC", "DESC":
				dir = d
			default:
				return nil, fmt.Errorf("invalid order direction %q: must be ASC or DESC", tokens[1])
			}
		}
		clauses = append(clauses, OrderClause{Column: col, Direction: dir})
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	return clauses, nil
}

// BuildOrderSQL renders clauses as "ORDER BY ...", quoting each column.
func BuildOrderSQL(clauses []OrderClause, quoteFn func(string) string) string {
	if len(clauses) == 0 {
		return ""
	}
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = quoteFn(c.Column) + " " + c.Direction
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Where accumulates AND-ed conditions with "?" placeholders.
type Where struct {
	conds []string
	args  []interface{}
}

// Add appends cond with its arguments. An empty cond is ignored.
func (w *Where) Add(cond string, args ...interface{}) *Where {
	if cond == "" {
		return w
	}
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
	return w
}

// Eq appends "column = ?" using the already-quoted column.
func (w *Where) Eq(quotedColumn string, v interface{}) *Where {
	return w.Add(quotedColumn+" = ?", v)
}

// SQL renders " WHERE a AND b", or "" when there are no conditions.
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	parts := make([]string, len(w.conds))
	for i, c := range w.conds {
		parts[i] = "(" + c + ")"
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

// Args returns the placeholder arguments in order.
func (w *Where) Args() []interface{} {
	return w.args
}
