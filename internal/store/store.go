// Package store persists portal users, roles, login history and the
// tenant-scoped business records on any of the supported SQL databases.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/custportal/portal/internal/connector"
	"github.com/custportal/portal/internal/connector/sqlite"
)

var (
	// ErrNotFound is returned when a requested record does not exist or is
	// outside the caller's scope.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with existing data.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned for writes that reference unknown columns
	// or omit required ones.
	ErrInvalidInput = errors.New("invalid input")
)

// Store wraps a connected database. All queries are written with "?"
// placeholders and rebound for the connector's driver.
type Store struct {
	conn connector.Connector
	db   *sqlx.DB
	now  func() time.Time
}

// New creates a Store on an already connected connector.
func New(conn connector.Connector) *Store {
	return &Store{conn: conn, db: conn.DB(), now: func() time.Time { return time.Now().UTC() }}
}

// NewMemory opens a migrated in-memory SQLite store.
func NewMemory() (*Store, error) {
	conn := sqlite.New()
	if err := conn.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}
	s := New(conn)
	if err := s.Migrate(context.Background()); err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("migrate memory database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Disconnect()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// DBStats returns the connection pool statistics.
func (s *Store) DBStats() sql.DBStats {
	return s.db.Stats()
}

// Driver returns the connector's driver name.
func (s *Store) Driver() string {
	return s.conn.DriverName()
}

func (s *Store) q(name string) string {
	return s.conn.QuoteIdentifier(name)
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// insert writes one row and returns its id, using RETURNING/OUTPUT where
// the dialect needs it.
func (s *Store) insert(ctx context.Context, table string, cols []string, args []interface{}) (int64, error) {
	query, returnsID := s.conn.InsertStatement(table, cols)
	query = s.rebind(query)

	if returnsID {
		var id int64
		if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, classify(err)
		}
		return id, nil
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	return result.LastInsertId()
}

// execAffected runs a write and maps zero affected rows to ErrNotFound.
func (s *Store) execAffected(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return classify(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// classify maps driver-specific constraint failures onto ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unique constraint"),
		strings.Contains(lower, "duplicate key"),
		strings.Contains(lower, "duplicate entry"),
		strings.Contains(lower, "violation of unique"):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
