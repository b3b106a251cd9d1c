package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custportal/portal/internal/access"
	"github.com/custportal/portal/internal/model"
	"github.com/custportal/portal/internal/server/middleware"
	"github.com/custportal/portal/internal/service"
	"github.com/custportal/portal/internal/store"
)

// LoginRecorder counts login attempts by result.
type LoginRecorder interface {
	RecordLogin(result string)
}

// AuthHandler serves the session and self-service account endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	store    *store.Store
	logger   *slog.Logger
	recorder LoginRecorder
}

// NewAuthHandler creates a new AuthHandler. recorder may be nil.
func NewAuthHandler(auth *service.AuthService, st *store.Store, logger *slog.Logger, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{auth: auth, store: st, logger: logger, recorder: recorder}
}

func (h *AuthHandler) recordLogin(result string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(result)
	}
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int         `json:"expires_in"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// Login verifies credentials and returns a bearer token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password, service.LoginMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			h.recordLogin("invalid")
			h.logger.Info("login failed", "username", req.Username, "remote_addr", r.RemoteAddr)
		case access.IsKind(err, access.KindAccountInactive):
			h.recordLogin("inactive")
		default:
			h.recordLogin("error")
		}
		writeFailure(w, r, h.logger, err, "Login failed")
		return
	}
	h.recordLogin("success")

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		TokenType: "bearer",
		ExpiresIn: int(time.Until(res.ExpiresAt).Seconds()),
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	})
}

// Logout revokes the caller's token and closes its login record.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tok := middleware.GetToken(r.Context())
	if tok == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.auth.Logout(r.Context(), tok); err != nil {
		writeFailure(w, r, h.logger, err, "Logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

type profileResponse struct {
	*model.User
	UserRole *model.Role `json:"user_role,omitempty"`
}

// Profile returns the caller's account with its role.
// GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	u, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to load profile")
		return
	}
	resp := profileResponse{User: u}
	if u.RoleID != nil {
		role, err := h.store.GetRole(r.Context(), *u.RoleID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeFailure(w, r, h.logger, err, "Failed to load profile")
			return
		}
		resp.UserRole = role
	}
	writeJSON(w, http.StatusOK, resp)
}

type profileUpdate struct {
	Email     *string `json:"email_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

// UpdateProfile changes the caller's contact details. Role, status and
// customer code cannot be changed here.
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdate
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p := middleware.GetPrincipal(r.Context())
	u, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to load profile")
		return
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !validEmail(email) {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		u.Email = email
	}
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}

	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		writeFailure(w, r, h.logger, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword replaces the caller's password after verifying the old one.
// PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Old and new password are required")
		return
	}

	p := middleware.GetPrincipal(r.Context())
	if err := h.auth.ChangePassword(r.Context(), p.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeFailure(w, r, h.logger, err, "Failed to change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password changed successfully",
	})
}

type rolePermissionsResponse struct {
	HasRole     bool             `json:"hasRole"`
	Role        *model.Role      `json:"role,omitempty"`
	Permissions *access.Document `json:"permissions"`
	Message     string           `json:"message,omitempty"`
}

// MyRolePermissions reports the caller's role and its normalized
// permissions. An inactive role reports null permissions.
// GET /api/auth/my-role-permissions
func (h *AuthHandler) MyRolePermissions(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	u, err := h.store.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to fetch role permissions")
		return
	}
	if u.RoleID == nil {
		writeJSON(w, http.StatusOK, rolePermissionsResponse{Message: "User has no role assigned"})
		return
	}

	role, err := h.store.GetRole(r.Context(), *u.RoleID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Role not found for current user")
		return
	}
	if err != nil {
		writeFailure(w, r, h.logger, err, "Failed to fetch role permissions")
		return
	}

	resp := rolePermissionsResponse{HasRole: true}
	if role.Active() {
		resp.Role = role
		resp.Permissions = role.Permissions
	} else {
		resp.Message = "User role is inactive"
	}
	writeJSON(w, http.StatusOK, resp)
}

func validEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
