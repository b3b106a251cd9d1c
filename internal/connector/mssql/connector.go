package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/custportal/portal/internal/connector"
)

// MSSQLConnector implements connector.Connector for SQL Server databases.
type MSSQLConnector struct {
	db *sqlx.DB
}

// New creates a new MSSQLConnector.
func New() connector.Connector {
	return &MSSQLConnector{}
}

// Connect establishes a connection pool to SQL Server.
func (c *MSSQLConnector) Connect(cfg connector.ConnectionConfig) error {
	db, err := connector.Open("sqlserver", cfg)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

// Disconnect closes the database connection pool.
func (c *MSSQLConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *MSSQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *MSSQLConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for SQL Server.
func (c *MSSQLConnector) DriverName() string { return "mssql" }

// QuoteIdentifier wraps a SQL identifier in brackets, escaping any
// embedded closing brackets to prevent SQL injection.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Paginate uses OFFSET/FETCH, which requires an ORDER BY in the same
// statement.
func (c *MSSQLConnector) Paginate(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	clause := fmt.Sprintf("OFFSET %d ROWS", offset)
	if limit > 0 {
		clause += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
	}
	return clause
}

// InsertStatement uses OUTPUT INSERTED.id since SQL Server has no
// RETURNING clause.
func (c *MSSQLConnector) InsertStatement(table string, cols []string) (string, bool) {
	values := connector.InsertColumns(c.QuoteIdentifier, cols)
	idx := strings.Index(values, " VALUES ")
	return "INSERT INTO " + c.QuoteIdentifier(table) + " " + values[:idx] +
		" OUTPUT INSERTED." + c.QuoteIdentifier("id") + values[idx:], true
}
