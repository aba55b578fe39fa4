package events

import (
	"time"

	"github.com/google/uuid"
)

// EmailRequestedEvent asks the mail transport to render and deliver a template.
type EmailRequestedEvent struct {
	EventID   string      `json:"event_id"`
	Recipient string      `json:"recipient"`
	Subject   string      `json:"subject"`
	Template  string      `json:"template"`
	Model     interface{} `json:"model"`
	Timestamp time.Time   `json:"timestamp"`
}

// StockChangedEvent is emitted after a stock change has been committed.
type StockChangedEvent struct {
	EventID          string    `json:"event_id"`
	StockChangeID    int64     `json:"stock_change_id"`
	ProductID        int32     `json:"product_id"`
	WarehouseID      int32     `json:"warehouse_id"`
	Quantity         int32     `json:"quantity"`
	StockInWarehouse int32     `json:"stock_in_warehouse"`
	ChangeDate       time.Time `json:"change_date"`
	Timestamp        time.Time `json:"timestamp"`
}

func NewEmailRequested(recipient, subject, template string, model interface{}) EmailRequestedEvent {
	return EmailRequestedEvent{
		EventID:   uuid.NewString(),
		Recipient: recipient,
		Subject:   subject,
		Template:  template,
		Model:     model,
		Timestamp: time.Now().UTC(),
	}
}

func NewStockChanged(changeID int64, productID, warehouseID, quantity, stockInWarehouse int32, changeDate time.Time) StockChangedEvent {
	return StockChangedEvent{
		EventID:          uuid.NewString(),
		StockChangeID:    changeID,
		ProductID:        productID,
		WarehouseID:      warehouseID,
		Quantity:         quantity,
		StockInWarehouse: stockInWarehouse,
		ChangeDate:       changeDate,
		Timestamp:        time.Now().UTC(),
	}
}
