package service

import (
	"context"
	"time"

	"tixledger/internal/external"
	"tixledger/internal/metrics"
	"tixledger/internal/models"
	"tixledger/internal/repository"
)

// Publisher is satisfied by *messaging.NATSClient
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// PaymentProvider is satisfied by *external.PaymentClient
type PaymentProvider interface {
	Approve(ctx context.Context, externalPaymentID string) error
	Complete(ctx context.Context, externalPaymentID, txID string) error
}

// TokenMinter is satisfied by *external.MinterClient
type TokenMinter interface {
	Mint(ctx context.Context, req external.MintRequest) (string, error)
}

// AuditSink is satisfied by *search.ElasticsearchClient
type AuditSink interface {
	Record(ctx context.Context, rec models.ReconciliationRecord) error
}

// StatusCache is satisfied by *cache.ValkeyClient
type StatusCache interface {
	GetPurchaseStatus(ctx context.Context, purchaseID string) (*models.PurchaseStatusResponse, error)
	SetPurchaseStatus(ctx context.Context, status *models.PurchaseStatusResponse) error
}

// Fees are added on top of quantity x price, in the same minor units
type Fees struct {
	Platform   int64
	Blockchain int64
}

func (f Fees) Total() int64 {
	return f.Platform + f.Blockchain
}

// Options carries the optional collaborators. Nil members are replaced by no-ops;
// a nil Minter makes the issuer derive token ids locally.
type Options struct {
	Publisher Publisher
	Provider  PaymentProvider
	Minter    TokenMinter
	Audit     AuditSink
	Cache     StatusCache
	Metrics   *metrics.Metrics
	Fees      Fees
	QRSecret  string
	Now       func() time.Time
}

type Services struct {
	Purchases  *PurchaseService
	Reconciler *Reconciler
	Tickets    *TicketService
}

func NewServices(repos *repository.Repositories, opts Options) *Services {
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Provider == nil {
		opts.Provider = nopProvider{}
	}
	if opts.Audit == nil {
		opts.Audit = nopAudit{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ticketService := NewTicketService(repos.Purchases, repos.Tickets, opts)
	purchaseService := NewPurchaseService(repos.TicketTypes, repos.Purchases, ticketService, opts)
	reconciler := NewReconciler(purchaseService, opts)

	return &Services{
		Purchases:  purchaseService,
		Reconciler: reconciler,
		Tickets:    ticketService,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) error { return nil }

type nopProvider struct{}

func (nopProvider) Approve(context.Context, string) error          { return nil }
func (nopProvider) Complete(context.Context, string, string) error { return nil }

type nopAudit struct{}

func (nopAudit) Record(context.Context, models.ReconciliationRecord) error { return nil }
