package repository

import (
	"context"
	"time"

	"tixledger/internal/database"
	"tixledger/internal/ledger"
	"tixledger/internal/models"
)

// TicketTypeStore is the persistent stock ledger plus catalog bookkeeping the core needs.
type TicketTypeStore interface {
	ledger.Ledger
	Create(ctx context.Context, tt *models.TicketType) error
	Deactivate(ctx context.Context, ticketTypeID string) error
}

// PurchaseStore persists purchases and their payments. Status changes only go
// through ApplyTransition.
type PurchaseStore interface {
	// CreatePending reserves purchase.Quantity units of purchase.TicketTypeID and
	// inserts the purchase and its payment, all as one unit. It fails with
	// ErrInsufficientStock, leaving nothing written, when the units are not available.
	CreatePending(ctx context.Context, purchase *models.Purchase, payment *models.Payment) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByPurchaseID(ctx context.Context, purchaseID string) (*models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error)
	// BindExternalID sets the provider id of a payment that has none yet.
	BindExternalID(ctx context.Context, paymentID, externalPaymentID string) (bool, error)
	// ApplyTransition swaps the payment status from t.From to t.To and applies the
	// purchase and stock effects atomically. It returns false, with nothing
	// written, when the payment is no longer in t.From.
	ApplyTransition(ctx context.Context, t models.PaymentTransition) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
	ListCompletedWithoutTicket(ctx context.Context, limit int) ([]models.Purchase, error)
}

// TicketStore persists issued NFT tickets
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*models.NFTTicket, error)
	GetByPurchaseID(ctx context.Context, purchaseID string) (*models.NFTTicket, error)
	// CreateIfAbsent inserts t unless the purchase already has a ticket and returns
	// the ticket that is stored afterwards.
	CreateIfAbsent(ctx context.Context, t *models.NFTTicket) (*models.NFTTicket, bool, error)
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

type Repositories struct {
	TicketTypes TicketTypeStore
	Purchases   PurchaseStore
	Tickets     TicketStore
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		TicketTypes: NewTicketTypeRepository(db),
		Purchases:   NewPurchaseRepository(db),
		Tickets:     NewTicketRepository(db),
	}
}
