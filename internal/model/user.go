package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role names carried in the JWT "role" claim
const (
	RoleAdmin   = "admin"
	RoleSale    = "sale"
	RoleStocker = "stocker"
	RoleUser    = "user"
)

// User represents a customer or a staff member
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Email     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"type:varchar(255);not null" json:"-"`   // Omit password from JSON requests/responses
	Role      string         `gorm:"type:varchar(20);not null" json:"role"` // admin, sale, stocker, user
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

// IsStaff reports whether the role belongs to back-office staff
func IsStaff(role string) bool {
	return role == RoleAdmin || role == RoleSale || role == RoleStocker
}
