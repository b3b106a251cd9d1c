package mysql

import (
	"context"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/custportal/portal/internal/connector"
)

// MySQLConnector implements connector.Connector for MySQL and MariaDB.
type MySQLConnector struct {
	db *sqlx.DB
}

// New creates a new MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect establishes a connection pool. parseTime is forced on so DATETIME
// columns scan into time.Time.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	if !strings.Contains(cfg.DSN, "parseTime=") {
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		cfg.DSN += sep + "parseTime=true"
	}
	db, err := connector.Open("mysql", cfg)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

// Disconnect closes the database connection pool.
func (c *MySQLConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *MySQLConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *MySQLConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks to prevent SQL injection.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (c *MySQLConnector) Paginate(limit, offset int) string {
	return connector.LimitOffset(limit, offset, "18446744073709551615")
}

func (c *MySQLConnector) InsertStatement(table string, cols []string) (string, bool) {
	return "INSERT INTO " + c.QuoteIdentifier(table) + " " + connector.InsertColumns(c.QuoteIdentifier, cols), false
}
