package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a stocked product line. Quantity is mutated by sales
// (decrement) and returns (increment) and is never allowed below zero.
type Product struct {
	ID        string          `db:"id" json:"id"`
	Brand     string          `db:"brand" json:"brand"`
	Size      string          `db:"size" json:"size"`
	Category  string          `db:"category" json:"category"`
	Barcode   string          `db:"barcode" json:"barcode"`
	Quantity  int             `db:"quantity" json:"quantity"`
	CostPrice decimal.Decimal `db:"cost_price" json:"cost_price"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Sale is an immutable record of a completed sale. Only ReturnStatus is
// ever updated after creation.
type Sale struct {
	ID              string          `db:"id" json:"id"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"total_price"`
	BillDiscount    decimal.Decimal `db:"bill_discount" json:"bill_discount"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method"`
	CustomerContact string          `db:"customer_contact" json:"customer_contact,omitempty"`
	ReturnStatus    string          `db:"return_status" json:"return_status"`
	IdempotencyKey  string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	Items []SaleItem `db:"-" json:"items"`
}

// SaleItem is one line of a sale. The line ID, not the product ID, is the
// unit of return accounting: a sale may carry two lines for the same
// product and returns must reconcile against the specific line sold.
//
// SellingPrice and CostPrice are line totals (price charged for the whole
// line post-discount, and cost basis for the whole line), snapshotted at
// sale time. Brand/Size/Category/Barcode are snapshotted too so a product
// deleted after sell-out can be recreated on restock.
type SaleItem struct {
	ID           string          `db:"id" json:"id"`
	SaleID       string          `db:"sale_id" json:"sale_id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	Brand        string          `db:"brand" json:"brand"`
	Size         string          `db:"size" json:"size"`
	Category     string          `db:"category" json:"category"`
	Barcode      string          `db:"barcode" json:"barcode"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Discount     decimal.Decimal `db:"discount" json:"discount"`
	SellingPrice decimal.Decimal `db:"selling_price" json:"selling_price"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"cost_price"`
}

// Return records one return transaction against a sale. It is written once
// and never mutated except to flip UpdatedInventory after the restock step
// completes; that flag is the recovery checkpoint for partial failures.
type Return struct {
	ID                string          `db:"id" json:"id"`
	SaleID            string          `db:"sale_id" json:"sale_id"`
	Reason            string          `db:"reason" json:"reason"`
	TotalRefund       decimal.Decimal `db:"total_refund" json:"total_refund"`
	TotalProfitImpact decimal.Decimal `db:"total_profit_impact" json:"total_profit_impact"`
	Status            string          `db:"status" json:"status"`
	UpdatedInventory  bool            `db:"updated_inventory" json:"updated_inventory"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`

	Items []ReturnItem `db:"-" json:"items"`
}

// ReturnItem reconciles against one sale line. UnitPrice is derived from
// the sale line (even split of the line discount), never re-priced.
type ReturnItem struct {
	ID                string          `db:"id" json:"id"`
	ReturnID          string          `db:"return_id" json:"return_id"`
	SaleItemID        string          `db:"sale_item_id" json:"sale_item_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	RequestedQuantity int             `db:"requested_quantity" json:"requested_quantity"`
	ApprovedQuantity  int             `db:"approved_quantity" json:"approved_quantity"`
	UnitPrice         decimal.Decimal `db:"unit_price" json:"unit_price"`
	RefundAmount      decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	ProfitImpact      decimal.Decimal `db:"profit_impact" json:"profit_impact"`
	Reason            string          `db:"reason" json:"reason"`
}

// DailyStatistics is a materialized view of one calendar day, keyed by an
// ISO date string. It is always fully recomputed from the day's sales and
// returns, never incrementally patched.
type DailyStatistics struct {
	Date                string          `db:"date" json:"date"`
	TotalRevenue        decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	TotalProfit         decimal.Decimal `db:"total_profit" json:"total_profit"`
	ReturnsRefund       decimal.Decimal `db:"returns_refund" json:"returns_refund"`
	ReturnsProfitImpact decimal.Decimal `db:"returns_profit_impact" json:"returns_profit_impact"`
	NetRevenue          decimal.Decimal `db:"net_revenue" json:"net_revenue"`
	NetProfit           decimal.Decimal `db:"net_profit" json:"net_profit"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// SequenceCounter backs barcode allocation for one namespace.
type SequenceCounter struct {
	Namespace string    `db:"namespace" json:"namespace"`
	Letter    string    `db:"letter" json:"letter"`
	Counter   int       `db:"counter" json:"counter"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Sale return statuses
const (
	ReturnStatusNone    = "NONE"
	ReturnStatusPartial = "PARTIAL"
	ReturnStatusFull    = "FULL"
)

// Return document statuses. The current policy auto-approves every return
// as PROCESSED; PENDING/APPROVED/REJECTED are modeled so a manual review
// workflow can be enabled without changing the reconciliation scan.
const (
	ReturnDocStatusPending   = "PENDING"
	ReturnDocStatusApproved  = "APPROVED"
	ReturnDocStatusRejected  = "REJECTED"
	ReturnDocStatusProcessed = "PROCESSED"
)

// DateFormat keys DailyStatistics documents.
const DateFormat = "2006-01-02"
