package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/session"
	"github.com/custportal/portal/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch   = errors.New("invalid current password")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

const tokenIssuer = "portal"

// Token is a verified session token.
type Token struct {
	UserID    int64
	ID        string
	ExpiresAt time.Time
}

// Claims returns the identity the access resolver needs.
func (t *Token) Claims() access.Claims {
	return access.Claims{UserID: t.UserID, TokenID: t.ID}
}

// LoginMeta describes the client performing a login.
type LoginMeta struct {
	IPAddress string
	UserAgent string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// AuthOptions configures AuthService.
type AuthOptions struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

type AuthService struct {
	store      *store.Store
	revoker    session.Revoker
	jwtSecret  []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(st *store.Store, revoker session.Revoker, opts AuthOptions) *AuthService {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{
		store:      st,
		revoker:    revoker,
		jwtSecret:  []byte(opts.JWTSecret),
		ttl:        opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
		now:        opts.Now,
	}
}

// HashPassword hashes a plaintext password with the configured cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Login verifies username and password, issues a session token and records
// the login. Unknown users and wrong passwords are indistinguishable; an
// inactive account is reported only after the password matched.
func (s *AuthService) Login(ctx context.Context, username, password string, meta LoginMeta) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		return nil, &access.Error{Kind: access.KindAccountInactive}
	}

	signed, tok, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LastLoginAt = &now

	err = s.store.RecordLogin(ctx, &model.LoginLog{
		UserID:    u.ID,
		Username:  u.Username,
		TokenID:   tok.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		LoginAt:   now,
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: signed, ExpiresAt: tok.ExpiresAt, User: u}, nil
}

// IssueToken creates a signed HS256 token for userID with a fresh token id.
func (s *AuthService) IssueToken(userID int64) (string, *Token, error) {
	now := s.now()
	tok := &Token{
		UserID:    userID,
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
	}
	claims := jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, tok, nil
}

// ValidateToken verifies signature, expiry and revocation.
func (s *AuthService) ValidateToken(ctx context.Context, tokenStr string) (*Token, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.UserID <= 0 || claims.ID == "" {
		return nil, ErrInvalidCredentials
	}

	if s.revoker != nil {
		revoked, err := s.revoker.Revoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	tok := &Token{UserID: claims.UserID, ID: claims.ID}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// Logout revokes the token and closes its login record.
func (s *AuthService) Logout(ctx context.Context, tok *Token) error {
	if s.revoker != nil {
		if err := s.revoker.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
			return err
		}
	}
	err := s.store.RecordLogout(ctx, tok.ID, s.now().UTC())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// ChangePassword replaces the password of userID after verifying the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrPasswordMismatch
	}
	hash, err := s.HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

type jwtClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}
