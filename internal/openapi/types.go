package openapi

import "strings"

// TypeMapping maps a SQL column type to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // string, integer, number, boolean, object
	Format string // int32, int64, float, double, date, date-time
}

// sqlTypes covers the column types used by the portal schema on every
// supported dialect (case-insensitive lookup).
var sqlTypes = map[string]TypeMapping{
	"int":      {"integer", "int32"},
	"integer":  {"integer", "int64"},
	"bigint":   {"integer", "int64"},
	"smallint": {"integer", "int32"},

	"real":             {"number", "double"},
	"float":            {"number", "double"},
	"double":           {"number", "double"},
	"double precision": {"number", "double"},
	"decimal":          {"number", "double"},
	"numeric":          {"number", "double"},
	"money":            {"number", "double"},

	"text":              {"string", ""},
	"varchar":           {"string", ""},
	"nvarchar":          {"string", ""},
	"char":              {"string", ""},
	"character varying": {"string", ""},

	"date":        {"string", "date"},
	"datetime":    {"string", "date-time"},
	"datetime2":   {"string", "date-time"},
	"timestamp":   {"string", "date-time"},
	"timestamptz": {"string", "date-time"},

	"boolean": {"boolean", ""},
	"bool":    {"boolean", ""},
	"bit":     {"boolean", ""},

	"json":  {"object", ""},
	"jsonb": {"object", ""},
}

// MapDBType converts a SQL column type to an OpenAPI type mapping. Length
// and precision suffixes are ignored; unknown types map to string.
func MapDBType(dbType string) TypeMapping {
	normalized := strings.ToLower(strings.TrimSpace(dbType))
	if idx := strings.IndexByte(normalized, '('); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	if m, ok := sqlTypes[normalized]; ok {
		return m
	}
	return TypeMapping{"string", ""}
}
