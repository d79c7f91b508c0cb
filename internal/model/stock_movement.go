package model

import (
	"time"

	"github.com/google/uuid"
)

// Movement types
const (
	MovementRestock    = "RESTOCK"
	MovementSale       = "SALE"
	MovementAdjustment = "ADJUSTMENT"
)

// StockMovement is an append-only ledger row. It is never updated or deleted.
// Exactly one of StockIn / StockOut is non-zero.
type StockMovement struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProductID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	Product     *Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Type        string     `gorm:"type:varchar(20);not null;index" json:"type"` // RESTOCK, SALE, ADJUSTMENT
	StockIn     int        `gorm:"type:int;not null;default:0" json:"stock_in"`
	StockOut    int        `gorm:"type:int;not null;default:0" json:"stock_out"`
	StockAfter  int        `gorm:"type:int;not null" json:"stock_after"`
	Reason      string     `gorm:"type:text" json:"reason"`
	OrderID     *uuid.UUID `gorm:"type:uuid;index" json:"order_id"` // SALE only
	InitiatedBy *uuid.UUID `gorm:"type:uuid;index" json:"initiated_by"`
	Initiator   *User      `gorm:"foreignKey:InitiatedBy" json:"initiator,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
}

// Delta returns the signed stock change of the movement
func (m StockMovement) Delta() int {
	return m.StockIn - m.StockOut
}

// ReconciliationReport records a product whose ledger does not explain its stock
type ReconciliationReport struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id" swaggertype:"string"`
	ProductID     uuid.UUID `gorm:"type:uuid;not null;index" json:"product_id" swaggertype:"string"`
	ProductSlug   string    `gorm:"type:varchar(255)" json:"product_slug"`
	CountInStock  int       `gorm:"type:int;not null" json:"count_in_stock"`
	InitialStock  int       `gorm:"type:int;not null" json:"initial_stock"`
	LedgerDelta   int       `gorm:"type:int;not null" json:"ledger_delta"`
	Drift         int       `gorm:"type:int;not null" json:"drift"` // (count_in_stock - initial_stock) - ledger_delta
	CorrelationID string    `gorm:"type:varchar(64);index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
