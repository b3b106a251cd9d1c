// Package query holds the small SQL-building helpers shared by the store:
// identifier validation, ORDER BY parsing against a column allowlist, and
// WHERE clause assembly with "?" placeholders.
package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxTextLen bounds a single text column value.
const MaxTextLen = 65535

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "ORDER": true,
	"GRANT": true, "REVOKE": true, "INDEX": true, "GROUP": true,
}

// ValidateIdentifier rejects empty, overlong, malformed and reserved
// identifiers.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("identifier cannot be empty")
	case len(name) > 64:
		return fmt.Errorf("identifier too long (max 64 chars): %q", name)
	case !identifierRegex.MatchString(name):
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	case reservedWords[strings.ToUpper(name)]:
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// ColumnValue checks a decoded JSON value before it is bound to a column.
// Only scalars are accepted. Strings lose NUL bytes and may not exceed
// maxLen (MaxTextLen when maxLen <= 0).
func ColumnValue(col string, v interface{}, maxLen int) (interface{}, error) {
	if maxLen <= 0 {
		maxLen = MaxTextLen
	}
	switch t := v.(type) {
	case nil, bool, float64, int, int64, time.Time:
		return t, nil
	case json.Number:
		return t.String(), nil
	case string:
		t = strings.ReplaceAll(t, "\x00", "")
		if len(t) > maxLen {
			return nil, fmt.Errorf("%s is too long (max %d chars)", col, maxLen)
		}
		return t, nil
	}
	return nil, fmt.Errorf("%s must be a string, number, boolean or null", col)
}
