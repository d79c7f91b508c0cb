package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a catalog item and its current stock level.
// CountInStock only changes through approval replay or a direct admin action.
type Product struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(255);not null" json:"name"`
	Slug         string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	Category     string          `gorm:"type:varchar(100);index" json:"category"`
	Brand        string          `gorm:"type:varchar(100)" json:"brand"`
	Description  string          `gorm:"type:text" json:"description"`
	Image        string          `gorm:"type:text" json:"image"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	CountInStock int             `gorm:"type:int;default:0;not null" json:"count_in_stock"`
	InitialStock int             `gorm:"type:int;default:0;not null" json:"initial_stock"` // stock at creation, reconciliation baseline
	IsPublished  bool            `gorm:"default:false;index" json:"is_published"`
	IsDeleted    bool            `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
