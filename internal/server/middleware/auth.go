package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the resolved principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
	// AuthTokenKey is the context key for the verified session token.
	AuthTokenKey contextKeyAuth = "auth_token"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*service.Token, error)
}

// PrincipalResolver builds the principal for verified claims.
type PrincipalResolver interface {
	Resolve(ctx context.Context, c access.Claims) (*access.Principal, error)
}

// Authenticate validates the Authorization: Bearer token, resolves a fresh
// principal for it and attaches both to the request context. Requests
// without a usable token are rejected with 401.
func Authenticate(tokens TokenValidator, resolver PrincipalResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeAccessError(w, &access.Error{Kind: access.KindUnauthenticated})
				return
			}

			tok, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrTokenRevoked) {
					writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
					return
				}
				logger.Error("token validation failed", "error", err, "request_id", GetRequestID(r.Context()))
				writeError(w, http.StatusInternalServerError, "Internal server error", nil)
				return
			}

			principal, err := resolver.Resolve(r.Context(), tok.Claims())
			if err != nil {
				if ae, ok := access.AsError(err); ok {
					writeAccessError(w, ae)
					return
				}
				logger.Error("resolve principal failed", "error", err, "user_id", tok.UserID,
					"request_id", GetRequestID(r.Context()))
				writeError(w, http.StatusInternalServerError, "Internal server error", nil)
				return
			}

			notePrincipal(r.Context(), principal)
			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			ctx = context.WithValue(ctx, AuthTokenKey, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

// GetPrincipal extracts the principal from the context. Returns nil on
// unauthenticated requests.
func GetPrincipal(ctx context.Context) *access.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*access.Principal); ok {
		return p
	}
	return nil
}

// GetToken extracts the verified session token from the context.
func GetToken(ctx context.Context) *service.Token {
	if t, ok := ctx.Value(AuthTokenKey).(*service.Token); ok {
		return t
	}
	return nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

func writeAccessError(w http.ResponseWriter, e *access.Error) {
	writeError(w, e.HTTPStatus(), e.Error(), e.Context())
}

func writeError(w http.ResponseWriter, status int, message string, ctx map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.NewErrorResponse(status, message, ctx))
}
