package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/custportal/portal/internal/access"
)

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	RecordDecision(module access.Module, err error)
}

// Guard turns the access checks into route middleware. It must run after
// Authenticate. Denials are logged at warn and answered with the access
// error's status and message.
type Guard struct {
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewGuard creates a Guard. recorder may be nil.
func NewGuard(logger *slog.Logger, recorder DecisionRecorder) *Guard {
	return &Guard{logger: logger, recorder: recorder}
}

func (g *Guard) check(module access.Module, fn func(p *access.Principal) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Allow(w, r, module, fn(GetPrincipal(r.Context()))) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Allow records the outcome of an access check made inside a handler. On
// denial it logs, writes the error response and returns false.
func (g *Guard) Allow(w http.ResponseWriter, r *http.Request, module access.Module, err error) bool {
	if g.recorder != nil {
		g.recorder.RecordDecision(module, err)
	}
	if err == nil {
		return true
	}
	g.Denied(r, err)
	if ae, ok := access.AsError(err); ok {
		writeAccessError(w, ae)
		return false
	}
	writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	return false
}

// Denied logs a refused access decision.
func (g *Guard) Denied(r *http.Request, err error) {
	attrs := []any{"error", err.Error(), "path", r.URL.Path, "request_id", GetRequestID(r.Context())}
	if p := GetPrincipal(r.Context()); p != nil {
		attrs = append(attrs, "user_id", p.UserID)
	}
	kind := "error"
	if ae, ok := access.AsError(err); ok {
		kind = ae.Kind.String()
		attrs = append(attrs, "kind", kind)
		if ae.Module != "" {
			attrs = append(attrs, "module", string(ae.Module))
		}
	}
	noteDenial(r.Context(), kind)
	g.logger.Warn("access denied", attrs...)
}

// Require allows principals holding module.op.
func (g *Guard) Require(m access.Module, op access.Operation) func(http.Handler) http.Handler {
	return g.check(m, func(p *access.Principal) error { return access.Require(p, m, op) })
}

// RequireModule allows principals holding any operation on m.
func (g *Guard) RequireModule(m access.Module) func(http.Handler) http.Handler {
	return g.check(m, func(p *access.Principal) error { return access.RequireModuleAccess(p, m) })
}

// RequireAny allows principals holding at least one of perms. The decision
// is recorded under AnyModule(perms...).
func (g *Guard) RequireAny(perms ...access.Permission) func(http.Handler) http.Handler {
	return g.check(AnyModule(perms...), func(p *access.Principal) error { return access.RequireAny(p, perms...) })
}

// AnyModule names the modules of perms joined by "|", in order and without
// repeats, for labelling a decision that spans several modules.
func AnyModule(perms ...access.Permission) access.Module {
	var names []string
	for _, p := range perms {
		if !slices.Contains(names, string(p.Module)) {
			names = append(names, string(p.Module))
		}
	}
	return access.Module(strings.Join(names, "|"))
}

// RequireAdmin allows admins only.
func (g *Guard) RequireAdmin() func(http.Handler) http.Handler {
	return g.check("", access.RequireAdmin)
}

// RequireAuthenticated allows any resolved principal.
func (g *Guard) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.check("", func(p *access.Principal) error {
		if p == nil {
			return &access.Error{Kind: access.KindUnauthenticated}
		}
		return nil
	})
}
