package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tixledger/internal/external"
	"tixledger/internal/metrics"
	"tixledger/internal/models"
	"tixledger/internal/repository"
	"tixledger/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

const (
	buyer      = "buyer-1"
	otherBuyer = "buyer-2"
	ticketType = "tt-1"
	price      = int64(1000)
)

var testFees = Fees{Platform: 50, Blockchain: 10}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
}

type published struct {
	subject string
	data    interface{}
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{subject: subject, data: data})
	return nil
}

func (p *recordingPublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.subject == subject {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last(subject string) interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.messages) - 1; i >= 0; i-- {
		if p.messages[i].subject == subject {
			return p.messages[i].data
		}
	}
	return nil
}

type fakeProvider struct {
	mu         sync.Mutex
	approved   []string
	completed  []string
	approveErr error
}

func (p *fakeProvider) Approve(ctx context.Context, externalPaymentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.approved = append(p.approved, externalPaymentID)
	return p.approveErr
}

func (p *fakeProvider) Complete(ctx context.Context, externalPaymentID, txID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, externalPaymentID)
	return nil
}

type fakeMinter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *fakeMinter) Mint(ctx context.Context, req external.MintRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "token-" + req.PurchaseID, nil
}

func (m *fakeMinter) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

type recordingAudit struct {
	mu      sync.Mutex
	records []models.ReconciliationRecord
}

func (a *recordingAudit) Record(ctx context.Context, rec models.ReconciliationRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingAudit) lastOutcome() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) == 0 {
		return ""
	}
	return a.records[len(a.records)-1].Outcome
}

type mapCache struct {
	mu     sync.Mutex
	items  map[string]models.PurchaseStatusResponse
	writes int
}

func (c *mapCache) GetPurchaseStatus(ctx context.Context, purchaseID string) (*models.PurchaseStatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[purchaseID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *mapCache) SetPurchaseStatus(ctx context.Context, status *models.PurchaseStatusResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[status.PurchaseID] = *status
	c.writes++
	return nil
}

// failingPurchases makes CreatePending fail without writing anything
type failingPurchases struct {
	repository.PurchaseStore
}

func (failingPurchases) CreatePending(context.Context, *models.Purchase, *models.Payment) error {
	return errors.New("insert failed")
}

type fixture struct {
	stock     *memory.TicketTypeStore
	purchases *memory.PurchaseStore
	tickets   *memory.TicketStore
	publisher *recordingPublisher
	provider  *fakeProvider
	minter    *fakeMinter
	audit     *recordingAudit
	cache     *mapCache
	metrics   *metrics.Metrics
	svc       *Services
}

func newFixture(t *testing.T, available int) *fixture {
	t.Helper()

	stock, purchases, tickets := memory.NewStores()
	f := &fixture{
		stock:     stock,
		purchases: purchases,
		tickets:   tickets,
		publisher: &recordingPublisher{},
		provider:  &fakeProvider{},
		minter:    &fakeMinter{},
		audit:     &recordingAudit{},
		cache:     &mapCache{items: make(map[string]models.PurchaseStatusResponse)},
		metrics:   metrics.NewNop(),
	}

	require.NoError(t, stock.Create(context.Background(), &models.TicketType{
		ID:                ticketType,
		EventID:           "ev-1",
		Name:              "General admission",
		Price:             price,
		Currency:          "PI",
		TotalQuantity:     available,
		AvailableQuantity: available,
		IsActive:          true,
	}))

	f.svc = NewServices(&repository.Repositories{
		TicketTypes: stock,
		Purchases:   purchases,
		Tickets:     tickets,
	}, Options{
		Publisher: f.publisher,
		Provider:  f.provider,
		Minter:    f.minter,
		Audit:     f.audit,
		Cache:     f.cache,
		Metrics:   f.metrics,
		Fees:      testFees,
		QRSecret:  "qr-secret",
	})
	return f
}

func (f *fixture) stockOf(t *testing.T) *models.TicketType {
	t.Helper()
	tt, err := f.stock.Get(context.Background(), ticketType)
	require.NoError(t, err)
	require.LessOrEqual(t, tt.AvailableQuantity+tt.SoldQuantity, tt.TotalQuantity)
	require.GreaterOrEqual(t, tt.AvailableQuantity, 0)
	return tt
}

func (f *fixture) purchase(t *testing.T, id string) *models.Purchase {
	t.Helper()
	p, err := f.purchases.GetPurchase(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *fixture) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := f.purchases.GetPayment(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *fixture) buy(t *testing.T, quantity int) *models.CreatePurchaseResponse {
	t.Helper()
	resp, err := f.svc.Purchases.CreatePurchase(context.Background(), buyer, ticketType, quantity)
	require.NoError(t, err)
	return resp
}

func (f *fixture) notify(t *testing.T, event, externalID string, resp *models.CreatePurchaseResponse) (string, error) {
	t.Helper()
	return f.svc.Reconciler.Reconcile(context.Background(), models.PaymentNotificationPayload{
		Event:     event,
		PaymentID: externalID,
		Amount:    resp.Amount,
		TxID:      "tx-" + externalID,
		Metadata:  resp.Metadata,
	})
}

// settle walks a purchase through approval and completion.
func (f *fixture) settle(t *testing.T, externalID string, resp *models.CreatePurchaseResponse) {
	t.Helper()
	outcome, err := f.notify(t, models.WebhookApproval, externalID, resp)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeApplied, outcome)
	outcome, err = f.notify(t, models.WebhookCompletion, externalID, resp)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeApplied, outcome)
}
