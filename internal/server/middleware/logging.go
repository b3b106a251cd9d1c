package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custportal/portal/internal/access"
)

const logEntryKey contextKey = "log_entry"

// logEntry collects attributes that inner handlers learn about a request
// after Logger has already passed it on: who the caller was and why it was
// refused.
type logEntry struct {
	userID int64
	role   access.RoleTag
	tenant string
	denial string
}

func entryFrom(ctx context.Context) *logEntry {
	e, _ := ctx.Value(logEntryKey).(*logEntry)
	return e
}

// notePrincipal records the caller on the access log line.
func notePrincipal(ctx context.Context, p *access.Principal) {
	if e := entryFrom(ctx); e != nil && p != nil {
		e.userID = p.UserID
		e.role = p.Role
		e.tenant = p.TenantCode
	}
}

// noteDenial records the kind of a refused access decision.
func noteDenial(ctx context.Context, kind string) {
	if e := entryFrom(ctx); e != nil {
		e.denial = kind
	}
}

// quietPaths are probed constantly and logged at debug only.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// Logger writes one structured line per request: method, route, status,
// duration, size and request id, plus the caller and any access denial.
// Server errors log at error, client errors at warn.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &logEntry{}
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logEntryKey, entry)))

			level := slog.LevelInfo
			switch {
			case ww.status >= 500:
				level = slog.LevelError
			case ww.status >= 400:
				level = slog.LevelWarn
			case quietPaths[r.URL.Path]:
				level = slog.LevelDebug
			}
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
				slog.Int("bytes", ww.bytes),
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
			}
			if entry.userID != 0 {
				attrs = append(attrs, slog.Int64("user_id", entry.userID), slog.String("role", string(entry.role)))
				if entry.tenant != "" {
					attrs = append(attrs, slog.String("customer_code", entry.tenant))
				}
			}
			if entry.denial != "" {
				attrs = append(attrs, slog.String("denied", entry.denial))
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter records the status and body size for Logger and Metrics.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
