package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultProductImage = "No Picture"

type Product struct {
	ID          int32  `gorm:"primaryKey" json:"id"`
	EAN         string `gorm:"size:20;uniqueIndex;not null" json:"ean"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"size:500" json:"description"`
	Image       string `json:"image"`

	Stocks []Stock `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"stocks,omitempty"`
}

type Warehouse struct {
	ID       int32  `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Location string `gorm:"size:200;uniqueIndex;not null" json:"location"`

	Stocks []Stock `gorm:"foreignKey:WarehouseID;constraint:OnDelete:CASCADE" json:"stocks,omitempty"`
	Users  []User  `gorm:"many2many:user_warehouses" json:"users,omitempty"`
}

// Stock is the materialized on-hand level of one product in one warehouse.
// It is validated and written independently of the StockChange log.
type Stock struct {
	ID                int32           `gorm:"primaryKey" json:"id"`
	ProductID         int32           `gorm:"uniqueIndex:idx_stock_product_warehouse;not null" json:"product_id"`
	WarehouseID       int32           `gorm:"uniqueIndex:idx_stock_product_warehouse;not null" json:"warehouse_id"`
	StockInWarehouse  int32           `json:"stock_in_warehouse"`
	StockInStore      int32           `json:"stock_in_store"`
	WarehouseCapacity int32           `json:"warehouse_capacity"`
	StoreCapacity     int32           `json:"store_capacity"`
	Price             decimal.Decimal `gorm:"type:numeric(12,4)" json:"price"`
	Currency          string          `gorm:"size:50" json:"currency"`
	TransportCost     decimal.Decimal `gorm:"type:numeric(12,4)" json:"transport_cost"`
	StorageCost       decimal.Decimal `gorm:"type:numeric(12,4)" json:"storage_cost"`
	WhenToWarn        int32           `json:"when_to_warn"`
	WhenToNotify      int32           `json:"when_to_notify"`

	Product   *Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Warehouse *Warehouse `gorm:"foreignKey:WarehouseID" json:"warehouse,omitempty"`
}

// StockChange is an append-only audit entry. Negative quantities are sales.
type StockChange struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Quantity   int32     `gorm:"not null" json:"quantity"`
	ChangeDate time.Time `gorm:"index;not null" json:"change_date"`
	ProductID  int32     `gorm:"index;not null" json:"product_id"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"product,omitempty"`
}

type NotificationKind string

const (
	LowStockNotification NotificationKind = "LowStockNotification"
	LowStockWarning      NotificationKind = "LowStockWarning"
)

type EmailNotificationLog struct {
	ID             int64            `gorm:"primaryKey" json:"id"`
	RecipientEmail string           `gorm:"size:255;index:idx_notification_lookup,priority:1;not null" json:"recipient_email"`
	Kind           NotificationKind `gorm:"size:32;not null" json:"kind"`
	ProductID      int32            `gorm:"index:idx_notification_lookup,priority:2;not null" json:"product_id"`
	SentDate       time.Time        `gorm:"index:idx_notification_lookup,priority:3;not null" json:"sent_date"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"product,omitempty"`
}
