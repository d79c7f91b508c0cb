package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a customer purchase. Payment capture drives SALE ledger entries.
type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User            *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	ShippingAddress string          `gorm:"type:text" json:"shipping_address"`
	PaymentMethod   string          `gorm:"type:varchar(50)" json:"payment_method"`
	PaymentRef      string          `gorm:"type:varchar(255)" json:"payment_ref"`
	ItemsPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"items_price"`
	ShippingPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"shipping_price"`
	TaxPrice        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_price"`
	TotalPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	IsPaid          bool            `gorm:"default:false;index" json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at"`
	IsDelivered     bool            `gorm:"default:false;index" json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem represents a line item within an Order
type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string          `gorm:"type:varchar(255)" json:"slug"`
	Quantity  int             `gorm:"type:int;not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
}
