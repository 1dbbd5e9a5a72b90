package models

import "time"

// CreatePurchaseRequest - модель для создания покупки
type CreatePurchaseRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required,min=1"`
}

// PaymentMetadata is sent to the provider at initiation and echoed back in callbacks
type PaymentMetadata struct {
	EventID    string `json:"eventId"`
	TicketID   string `json:"ticketId"`
	PurchaseID string `json:"purchaseId"`
	TicketType string `json:"ticketType"`
	Quantity   int    `json:"quantity"`
}

// CreatePurchaseResponse - модель ответа при создании покупки
type CreatePurchaseResponse struct {
	PurchaseID string          `json:"purchase_id"`
	PaymentID  string          `json:"payment_id"`
	Amount     int64           `json:"amount"`
	Currency   string          `json:"currency"`
	Memo       string          `json:"memo"`
	Metadata   PaymentMetadata `json:"metadata"`
}

// PurchaseStatusResponse - статус покупки
type PurchaseStatusResponse struct {
	PurchaseID      string  `json:"purchase_id"`
	BuyerID         string  `json:"buyer_id"`
	PaymentStatus   string  `json:"payment_status"`
	TransactionHash *string `json:"transaction_hash,omitempty"`
}

// AvailabilityResponse - наличие билетов
type AvailabilityResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Webhook event kinds sent by the payment provider
const (
	WebhookApproval     = "approval"
	WebhookCompletion   = "completion"
	WebhookCancellation = "cancellation"
	WebhookIncomplete   = "incomplete"
)

// PaymentNotificationPayload - модель для webhook уведомлений от платежного провайдера
type PaymentNotificationPayload struct {
	Event     string          `json:"event" binding:"required"`
	PaymentID string          `json:"paymentId" binding:"required"`
	Amount    int64           `json:"amount"`
	TxID      string          `json:"txid"`
	Metadata  PaymentMetadata `json:"metadata"`
}

// WebhookResponse tells the provider what happened to its notification
type WebhookResponse struct {
	Outcome string `json:"outcome"`
}

// RedeemTicketRequest - модель для погашения билета
type RedeemTicketRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// RedeemTicketResponse - ответ при погашении билета
type RedeemTicketResponse struct {
	TicketID   string    `json:"ticket_id"`
	PurchaseID string    `json:"purchase_id"`
	TokenID    string    `json:"token_id"`
	UsedAt     time.Time `json:"used_at"`
}

// Reconciliation outcomes
const (
	OutcomeApplied       = "applied"
	OutcomeNoop          = "noop"
	OutcomeMismatch      = "mismatch"
	OutcomeUnknown       = "unknown"
	OutcomeProviderError = "provider_error"
)

// ReconciliationRecord is the audit entry written for every handled callback
type ReconciliationRecord struct {
	PaymentID         string    `json:"payment_id,omitempty"`
	ExternalPaymentID string    `json:"external_payment_id"`
	PurchaseID        string    `json:"purchase_id,omitempty"`
	EventKind         string    `json:"event_kind"`
	Outcome           string    `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	ReportedAmount    int64     `json:"reported_amount"`
	ExpectedAmount    int64     `json:"expected_amount"`
	At                time.Time `json:"at"`
}
