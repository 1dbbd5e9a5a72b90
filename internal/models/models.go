package models

import (
	"time"

	"tixledger/internal/payment"
)

// TicketType represents a priced tier of admission to an event
type TicketType struct {
	ID                string     `json:"id" db:"id"`
	EventID           string     `json:"event_id" db:"event_id"`
	Name              string     `json:"name" db:"name"`
	Price             int64      `json:"price" db:"price"`
	Currency          string     `json:"currency" db:"currency"`
	TotalQuantity     int        `json:"total_quantity" db:"total_quantity"`
	AvailableQuantity int        `json:"available_quantity" db:"available_quantity"`
	SoldQuantity      int        `json:"sold_quantity" db:"sold_quantity"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	SaleStart         *time.Time `json:"sale_start" db:"sale_start"`
	SaleEnd           *time.Time `json:"sale_end" db:"sale_end"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Reserved is the implicit count of units held by pending purchases.
func (t *TicketType) Reserved() int {
	return t.TotalQuantity - t.AvailableQuantity - t.SoldQuantity
}

// InSaleWindow reports whether now falls inside [SaleStart, SaleEnd]. Open bounds are unlimited.
func (t *TicketType) InSaleWindow(now time.Time) bool {
	if t.SaleStart != nil && now.Before(*t.SaleStart) {
		return false
	}
	if t.SaleEnd != nil && now.After(*t.SaleEnd) {
		return false
	}
	return true
}

// Purchase represents one buyer's attempt to acquire tickets of a single type
type Purchase struct {
	ID              string                 `json:"id" db:"id"`
	BuyerID         string                 `json:"buyer_id" db:"buyer_id"`
	EventID         string                 `json:"event_id" db:"event_id"`
	TicketTypeID    string                 `json:"ticket_type_id" db:"ticket_type_id"`
	Quantity        int                    `json:"quantity" db:"quantity"`
	TotalAmount     int64                  `json:"total_amount" db:"total_amount"`
	Currency        string                 `json:"currency" db:"currency"`
	PaymentStatus   payment.PurchaseStatus `json:"payment_status" db:"payment_status"`
	TransactionHash *string                `json:"transaction_hash" db:"transaction_hash"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
}

// Payment represents the provider-facing settlement record of a purchase
type Payment struct {
	ID                string         `json:"id" db:"id"`
	PurchaseID        *string        `json:"purchase_id" db:"purchase_id"`
	UserID            string         `json:"user_id" db:"user_id"`
	Amount            int64          `json:"amount" db:"amount"`
	Currency          string         `json:"currency" db:"currency"`
	Memo              string         `json:"memo" db:"memo"`
	Status            payment.Status `json:"status" db:"status"`
	ExternalPaymentID *string        `json:"external_payment_id" db:"external_payment_id"`
	TransactionHash   *string        `json:"transaction_hash" db:"transaction_hash"`
	CompletedAt       *time.Time     `json:"completed_at" db:"completed_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// NFTTicket is the proof-of-ownership record of a completed purchase
type NFTTicket struct {
	ID         string     `json:"id" db:"id"`
	PurchaseID string     `json:"purchase_id" db:"purchase_id"`
	TokenID    string     `json:"token_id" db:"token_id"`
	IsUsed     bool       `json:"is_used" db:"is_used"`
	UsedAt     *time.Time `json:"used_at" db:"used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// StockEffect is applied to the ticket type counters together with a payment transition
type StockEffect int

const (
	StockNone StockEffect = iota
	StockCommit
	StockRelease
)

// PaymentTransition describes one compare-and-transition of a payment row and the
// side effects that must land in the same atomic unit.
type PaymentTransition struct {
	PaymentID       string
	From            payment.Status
	To              payment.Status
	TransactionHash *string
	At              time.Time

	// Purchase side effects, skipped when PurchaseID is empty
	PurchaseID     string
	PurchaseStatus payment.PurchaseStatus

	Stock        StockEffect
	TicketTypeID string
	Quantity     int
}
