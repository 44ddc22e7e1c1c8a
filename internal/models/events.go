package models

import "time"

// Event types
const (
	EventTypeSaleCreated     = "SALE_CREATED"
	EventTypeReturnProcessed = "RETURN_PROCESSED"
	EventTypeReturnRecovered = "RETURN_RECOVERED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleLineData represents line data in events
type SaleLineData struct {
	SaleItemID string `json:"sale_item_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

// SaleCreatedEvent is published after a sale is persisted and stock
// decremented. Day carries the sale's calendar day so consumers can scope
// the statistics recompute.
type SaleCreatedEvent struct {
	BaseEvent
	SaleID     string         `json:"sale_id"`
	TotalPrice string         `json:"total_price"`
	Day        string         `json:"day"`
	Items      []SaleLineData `json:"items"`
}

// ReturnProcessedEvent is published after a return completes its restock
// and status-update tail.
type ReturnProcessedEvent struct {
	BaseEvent
	ReturnID    string `json:"return_id"`
	SaleID      string `json:"sale_id"`
	TotalRefund string `json:"total_refund"`
	Day         string `json:"day"`
}

// ReturnRecoveredEvent is published when the recovery sweep completes the
// restock tail for a return left with updated_inventory = false.
type ReturnRecoveredEvent struct {
	BaseEvent
	ReturnID string `json:"return_id"`
	SaleID   string `json:"sale_id"`
	Day      string `json:"day"`
}
