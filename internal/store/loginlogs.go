package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/query"
)

type loginLogRow struct {
	ID        int64        `db:"id"`
	UserID    int64        `db:"user_id"`
	Username  string       `db:"username"`
	TokenID   string       `db:"token_id"`
	IPAddress string       `db:"ip_address"`
	UserAgent string       `db:"user_agent"`
	LoginAt   time.Time    `db:"login_datetime"`
	LogoutAt  sql.NullTime `db:"logout_datetime"`
}

func (r *loginLogRow) toModel() model.LoginLog {
	l := model.LoginLog{
		ID:        r.ID,
		UserID:    r.UserID,
		Username:  r.Username,
		TokenID:   r.TokenID,
		IPAddress: r.IPAddress,
		UserAgent: r.UserAgent,
		LoginAt:   r.LoginAt,
	}
	if r.LogoutAt.Valid {
		t := r.LogoutAt.Time
		l.LogoutAt = &t
	}
	return l
}

// RecordLogin appends a login entry.
func (s *Store) RecordLogin(ctx context.Context, l *model.LoginLog) error {
	if l.LoginAt.IsZero() {
		l.LoginAt = s.now()
	}
	id, err := s.insert(ctx, "login_logs",
		[]string{"user_id", "username", "token_id", "ip_address", "user_agent", "login_datetime"},
		[]interface{}{l.UserID, l.Username, l.TokenID, l.IPAddress, l.UserAgent, l.LoginAt})
	if err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	l.ID = id
	return nil
}

// RecordLogout stamps the logout time on the open entry for tokenID.
func (s *Store) RecordLogout(ctx context.Context, tokenID string, at time.Time) error {
	err := s.execAffected(ctx,
		"UPDATE login_logs SET logout_datetime = ? WHERE token_id = ? AND logout_datetime IS NULL", at, tokenID)
	if err != nil {
		return fmt.Errorf("record logout: %w", err)
	}
	return nil
}

// LoginLogFilter narrows ListLoginLogs. A zero UserID lists every user.
type LoginLogFilter struct {
	UserID int64
	Limit  int
	Offset int
}

// ListLoginLogs returns login entries newest first with the unpaginated total.
func (s *Store) ListLoginLogs(ctx context.Context, f LoginLogFilter) ([]model.LoginLog, int64, error) {
	var w query.Where
	if f.UserID > 0 {
		w.Eq("user_id", f.UserID)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.rebind("SELECT COUNT(*) FROM login_logs"+w.SQL()), w.Args()...); err != nil {
		return nil, 0, fmt.Errorf("count login logs: %w", err)
	}

	q := "SELECT id, user_id, username, token_id, ip_address, user_agent, login_datetime, logout_datetime FROM login_logs" +
		w.SQL() + " ORDER BY id DESC"
	if page := s.conn.Paginate(f.Limit, f.Offset); page != "" {
		q += " " + page
	}
	var rows []loginLogRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(q), w.Args()...); err != nil {
		return nil, 0, fmt.Errorf("list login logs: %w", err)
	}
	logs := make([]model.LoginLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].toModel()
	}
	return logs, total, nil
}
