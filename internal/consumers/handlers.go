package consumers

import (
	"context"
	"encoding/json"
	"fmt"

	"tixledger/internal/logger"
	"tixledger/internal/models"

	"github.com/nats-io/stan.go"
)

// TicketIssuer is satisfied by *service.TicketService
type TicketIssuer interface {
	Issue(ctx context.Context, purchaseID string) (*models.NFTTicket, error)
	RequestRetry(ctx context.Context, purchaseID string, attempt int, cause error)
}

type Handlers struct {
	tickets     TicketIssuer
	maxAttempts int
}

func NewHandlers(tickets TicketIssuer, maxAttempts int) *Handlers {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Handlers{
		tickets:     tickets,
		maxAttempts: maxAttempts,
	}
}

// HandleTicketIssueRequested retries issuance of a completed purchase. The message
// is always acked: a failed attempt is republished with the next attempt number,
// and after maxAttempts the purchase is left to the reissue sweep.
func (h *Handlers) HandleTicketIssueRequested(m *stan.Msg) {
	if err := h.processIssueRequest(context.Background(), m.Data); err != nil {
		logger.Get().Error("Failed to process ticket issue request", "error", err)
	}
	if err := m.Ack(); err != nil {
		logger.Get().Error("Failed to ack ticket issue request", "error", err)
	}
}

func (h *Handlers) processIssueRequest(ctx context.Context, data []byte) error {
	var event models.TicketIssueRequestedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal ticket issue request: %w", err)
	}

	ctx = logger.ContextWithPurchaseID(ctx, event.PurchaseID)
	log := logger.WithContext(ctx)

	ticket, err := h.tickets.Issue(ctx, event.PurchaseID)
	if err == nil {
		log.Info("Ticket issued on retry", "ticket_id", ticket.ID, "attempt", event.Attempt)
		return nil
	}

	next := event.Attempt + 1
	if next > h.maxAttempts {
		log.Error("Giving up on ticket issuance, left for reissue sweep",
			"error", err,
			"attempts", event.Attempt)
		return nil
	}

	h.tickets.RequestRetry(ctx, event.PurchaseID, next, err)
	return nil
}

// HandlePaymentMismatch escalates a payment whose callback disagreed with the
// stored record. Nothing is changed automatically.
func (h *Handlers) HandlePaymentMismatch(m *stan.Msg) {
	if err := h.processMismatch(m.Data); err != nil {
		logger.Get().Error("Failed to process payment mismatch", "error", err)
	}
	if err := m.Ack(); err != nil {
		logger.Get().Error("Failed to ack payment mismatch", "error", err)
	}
}

func (h *Handlers) processMismatch(data []byte) error {
	var event models.PaymentMismatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal payment mismatch: %w", err)
	}

	logger.Get().Error("Payment requires manual reconciliation",
		"payment_id", event.PaymentID,
		"external_payment_id", event.ExternalPaymentID,
		"purchase_id", event.PurchaseID,
		"reported_amount", event.ReportedAmount,
		"expected_amount", event.ExpectedAmount,
		"reason", event.Reason)
	return nil
}
