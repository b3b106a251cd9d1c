package model

import (
	"time"

	"github.com/custportal/portal/internal/access"
)

// Account status values shared by users and roles.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ValidStatus reports whether s is an accepted status value.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusInactive
}

// User is a portal account. Customers carry the customer code their data is
// scoped to; admins normally do not.
type User struct {
	ID           int64          `json:"id" db:"id"`
	Username     string         `json:"username" db:"username"`
	Email        string         `json:"email_id" db:"email_id"`
	PasswordHash string         `json:"-" db:"password_hash"` // bcrypt hash, never expose
	FirstName    string         `json:"first_name" db:"first_name"`
	LastName     string         `json:"last_name" db:"last_name"`
	Phone        string         `json:"phone" db:"phone"`
	CustomerCode string         `json:"customer_code,omitempty" db:"customer_code"`
	Role         access.RoleTag `json:"role" db:"role"`
	RoleID       *int64         `json:"role_id,omitempty" db:"role_id"`
	Status       string         `json:"status" db:"status"`
	LastLoginAt  *time.Time     `json:"last_login_datetime,omitempty" db:"last_login_datetime"`
	CreatedBy    *int64         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time      `json:"created_date" db:"created_date"`
	UpdatedAt    time.Time      `json:"modified_date" db:"modified_date"`
}

// Active reports whether the account may sign in.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// LoginLog records one session from login to logout.
type LoginLog struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Username  string     `json:"username" db:"username"`
	TokenID   string     `json:"-" db:"token_id"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	UserAgent string     `json:"user_agent" db:"user_agent"`
	LoginAt   time.Time  `json:"login_datetime" db:"login_datetime"`
	LogoutAt  *time.Time `json:"logout_datetime,omitempty" db:"logout_datetime"`
}
