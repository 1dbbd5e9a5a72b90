package models

import "time"

// NATS Event Types
const (
	EventPurchaseCreated      = "purchase.created"
	EventPurchaseExpired      = "purchase.expired"
	EventPaymentApproved      = "payment.approved"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventPaymentMismatch      = "payment.mismatch"
	EventTicketIssued         = "ticket.issued"
	EventTicketIssueRequested = "ticket.issue.requested"
)

// PurchaseCreatedEvent represents a new pending purchase holding a reservation
type PurchaseCreatedEvent struct {
	PurchaseID   string    `json:"purchase_id"`
	PaymentID    string    `json:"payment_id"`
	BuyerID      string    `json:"buyer_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Amount       int64     `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentApprovedEvent represents a payment approved after verification
type PaymentApprovedEvent struct {
	PaymentID         string    `json:"payment_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	PurchaseID        string    `json:"purchase_id"`
	Timestamp         time.Time `json:"timestamp"`
}

// PaymentCompletedEvent represents a settled payment
type PaymentCompletedEvent struct {
	PaymentID         string    `json:"payment_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	PurchaseID        string    `json:"purchase_id"`
	TransactionHash   string    `json:"transaction_hash"`
	Timestamp         time.Time `json:"timestamp"`
}

// PaymentFailedEvent represents a cancelled, incomplete or expired payment
type PaymentFailedEvent struct {
	PaymentID  string    `json:"payment_id"`
	PurchaseID string    `json:"purchase_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// PaymentMismatchEvent is escalated for manual reconciliation
type PaymentMismatchEvent struct {
	PaymentID         string    `json:"payment_id"`
	ExternalPaymentID string    `json:"external_payment_id"`
	PurchaseID        string    `json:"purchase_id"`
	ReportedAmount    int64     `json:"reported_amount"`
	ExpectedAmount    int64     `json:"expected_amount"`
	Reason            string    `json:"reason"`
	Timestamp         time.Time `json:"timestamp"`
}

// TicketIssuedEvent represents a minted ticket
type TicketIssuedEvent struct {
	TicketID   string    `json:"ticket_id"`
	PurchaseID string    `json:"purchase_id"`
	TokenID    string    `json:"token_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// TicketIssueRequestedEvent asks the consumers to retry issuance for a purchase
type TicketIssueRequestedEvent struct {
	PurchaseID string    `json:"purchase_id"`
	Attempt    int       `json:"attempt"`
	LastError  string    `json:"last_error"`
	Timestamp  time.Time `json:"timestamp"`
}

// PurchaseExpiredEvent represents a purchase released by the TTL sweep
type PurchaseExpiredEvent struct {
	PurchaseID   string    `json:"purchase_id"`
	PaymentID    string    `json:"payment_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}
