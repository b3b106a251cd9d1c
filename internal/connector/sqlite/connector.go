package sqlite

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/custportal/portal/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	db *sqlx.DB
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens the SQLite database file named by the DSN, or ":memory:".
// SQLite serializes writers, so the pool is capped at one connection and
// foreign keys are switched on for it.
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	cfg.MaxOpenConns = 1
	db, err := connector.Open("sqlite", cfg)
	if err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return err
	}
	c.db = db
	return nil
}

// Disconnect closes the database connection.
func (c *SQLiteConnector) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB connection pool.
func (c *SQLiteConnector) DB() *sqlx.DB {
	return c.db
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes to prevent SQL injection.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *SQLiteConnector) Paginate(limit, offset int) string {
	return connector.LimitOffset(limit, offset, "-1")
}

// InsertStatement uses LastInsertId; RETURNING is avoided so the same code
// path works on older SQLite builds.
func (c *SQLiteConnector) InsertStatement(table string, cols []string) (string, bool) {
	return "INSERT INTO " + c.QuoteIdentifier(table) + " " + connector.InsertColumns(c.QuoteIdentifier, cols), false
}
