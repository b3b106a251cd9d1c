package model

import (
	"time"

	"github.com/custportal/portal/internal/access"
)

// Role groups a normalized permission document under a name. Customers are
// assigned at most one role; an inactive role grants nothing.
type Role struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Permissions *access.Document `json:"permissions"`
	CreatedAt   time.Time        `json:"created_date"`
	UpdatedAt   time.Time        `json:"modified_date"`
}

// Active reports whether the role's permissions are in effect.
func (r *Role) Active() bool {
	return r.Status == StatusActive
}
