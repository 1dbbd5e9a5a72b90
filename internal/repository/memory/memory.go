// Package memory keeps the repository contracts in process. Stock counters live in
// a ledger.Memory. Purchase and payment rows sit behind a map lock that is only
// held for reads and writes of the maps; transitions are serialised per payment.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/ledger"
	"tixledger/internal/models"
	"tixledger/internal/payment"
	"tixledger/internal/repository"
)

func NewRepositories() *repository.Repositories {
	stock, purchases, tickets := NewStores()
	return &repository.Repositories{
		TicketTypes: stock,
		Purchases:   purchases,
		Tickets:     tickets,
	}
}

// NewStores returns the concrete stores, wired to each other.
func NewStores() (*TicketTypeStore, *PurchaseStore, *TicketStore) {
	stock := NewTicketTypeStore()
	purchases := NewPurchaseStore(stock.Memory)
	tickets := NewTicketStore()
	purchases.TrackTickets(tickets)
	return stock, purchases, tickets
}

type TicketTypeStore struct {
	*ledger.Memory
}

func NewTicketTypeStore() *TicketTypeStore {
	return &TicketTypeStore{Memory: ledger.NewMemory()}
}

func (s *TicketTypeStore) Create(ctx context.Context, tt *models.TicketType) error {
	now := time.Now()
	tt.CreatedAt, tt.UpdatedAt = now, now
	s.Put(*tt)
	return nil
}

func (s *TicketTypeStore) Deactivate(ctx context.Context, ticketTypeID string) error {
	return s.Memory.Deactivate(ticketTypeID)
}

type PurchaseStore struct {
	stock *ledger.Memory

	mu        sync.RWMutex
	purchases map[string]models.Purchase
	payments  map[string]models.Payment
	external  map[string]string      // external payment id -> payment id
	byOrder   map[string]string      // purchase id -> payment id
	locks     map[string]*sync.Mutex // payment id -> transition lock
	issued    func(purchaseID string) bool
}

func NewPurchaseStore(stock *ledger.Memory) *PurchaseStore {
	return &PurchaseStore{
		stock:     stock,
		purchases: make(map[string]models.Purchase),
		payments:  make(map[string]models.Payment),
		external:  make(map[string]string),
		byOrder:   make(map[string]string),
		locks:     make(map[string]*sync.Mutex),
	}
}

// TrackTickets lets ListCompletedWithoutTicket see the ticket store.
func (s *PurchaseStore) TrackTickets(tickets *TicketStore) {
	s.issued = func(purchaseID string) bool {
		t, _ := tickets.GetByPurchaseID(context.Background(), purchaseID)
		return t != nil
	}
}

// CreatePending reserves the purchase quantity and stores the purchase with its
// payment. A failed insert hands the units back before returning.
func (s *PurchaseStore) CreatePending(ctx context.Context, purchase *models.Purchase, pay *models.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.stock.Reserve(ctx, purchase.TicketTypeID, purchase.Quantity); err != nil {
		return err
	}
	if err := s.insertPending(purchase, pay); err != nil {
		if relErr := s.stock.Release(context.WithoutCancel(ctx), purchase.TicketTypeID, purchase.Quantity); relErr != nil {
			return fmt.Errorf("%w (release failed: %v)", err, relErr)
		}
		return err
	}
	return nil
}

func (s *PurchaseStore) insertPending(purchase *models.Purchase, pay *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchases[purchase.ID]; ok {
		return fmt.Errorf("purchase %s already exists", purchase.ID)
	}
	if _, ok := s.payments[pay.ID]; ok {
		return fmt.Errorf("payment %s already exists", pay.ID)
	}

	now := time.Now()
	purchase.CreatedAt, purchase.UpdatedAt = now, now
	pay.CreatedAt, pay.UpdatedAt = now, now

	s.purchases[purchase.ID] = *purchase
	s.payments[pay.ID] = *pay
	s.locks[pay.ID] = &sync.Mutex{}
	if pay.PurchaseID != nil {
		s.byOrder[*pay.PurchaseID] = pay.ID
	}
	return nil
}

func (s *PurchaseStore) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *PurchaseStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentLocked(id), nil
}

func (s *PurchaseStore) GetPaymentByPurchaseID(ctx context.Context, purchaseID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentLocked(s.byOrder[purchaseID]), nil
}

func (s *PurchaseStore) GetPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paymentLocked(s.external[externalPaymentID]), nil
}

func (s *PurchaseStore) paymentLocked(id string) *models.Payment {
	p, ok := s.payments[id]
	if !ok {
		return nil
	}
	return &p
}

func (s *PurchaseStore) BindExternalID(ctx context.Context, paymentID, externalPaymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok || p.ExternalPaymentID != nil {
		return false, nil
	}
	if _, taken := s.external[externalPaymentID]; taken {
		return false, fmt.Errorf("external payment id %s already bound", externalPaymentID)
	}

	id := externalPaymentID
	p.ExternalPaymentID = &id
	p.UpdatedAt = time.Now()
	s.payments[paymentID] = p
	s.external[externalPaymentID] = paymentID
	return true, nil
}

func (s *PurchaseStore) ApplyTransition(ctx context.Context, t models.PaymentTransition) (bool, error) {
	s.mu.RLock()
	lock := s.locks[t.PaymentID]
	s.mu.RUnlock()
	if lock == nil {
		return false, nil
	}

	// Status fields of a payment and its purchase only change under this lock.
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	p, ok := s.payments[t.PaymentID]
	purchase, purchaseOK := s.purchases[t.PurchaseID]
	s.mu.RUnlock()
	if !ok || p.Status != t.From {
		return false, nil
	}
	if t.PurchaseID != "" && (!purchaseOK || purchase.PaymentStatus != payment.PurchasePending) {
		return false, fmt.Errorf("purchase %s is not pending", t.PurchaseID)
	}

	// stock first: it is the only step that can still fail
	var err error
	switch t.Stock {
	case models.StockCommit:
		err = s.stock.Commit(ctx, t.TicketTypeID, t.Quantity)
	case models.StockRelease:
		err = s.stock.Release(ctx, t.TicketTypeID, t.Quantity)
	}
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// re-read: the provider id may have been bound meanwhile
	p = s.payments[t.PaymentID]
	p.Status = t.To
	p.UpdatedAt = t.At
	if t.TransactionHash != nil {
		hash := *t.TransactionHash
		p.TransactionHash = &hash
	}
	if t.To == payment.StatusCompleted {
		at := t.At
		p.CompletedAt = &at
	}
	s.payments[p.ID] = p

	if t.PurchaseID != "" {
		purchase = s.purchases[t.PurchaseID]
		purchase.PaymentStatus = t.PurchaseStatus
		purchase.UpdatedAt = t.At
		if t.TransactionHash != nil {
			hash := *t.TransactionHash
			purchase.TransactionHash = &hash
		}
		s.purchases[purchase.ID] = purchase
	}
	return true, nil
}

func (s *PurchaseStore) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Payment
	for _, p := range s.payments {
		if p.Status == payment.StatusPending && p.PurchaseID != nil && p.CreatedAt.Before(createdBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PurchaseStore) ListCompletedWithoutTicket(ctx context.Context, limit int) ([]models.Purchase, error) {
	s.mu.RLock()
	var completed []models.Purchase
	for _, p := range s.purchases {
		if p.PaymentStatus == payment.PurchaseCompleted {
			completed = append(completed, p)
		}
	}
	s.mu.RUnlock()

	var out []models.Purchase
	for _, p := range completed {
		if s.issued != nil && s.issued(p.ID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Backdate shifts a payment's creation time, for sweeps in tests and local runs.
func (s *PurchaseStore) Backdate(paymentID string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return apperrors.ErrNotFound
	}
	p.CreatedAt = p.CreatedAt.Add(-d)
	s.payments[paymentID] = p
	return nil
}

type TicketStore struct {
	mu         sync.Mutex
	tickets    map[string]models.NFTTicket
	byPurchase map[string]string
	tokens     map[string]string
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		tickets:    make(map[string]models.NFTTicket),
		byPurchase: make(map[string]string),
		tokens:     make(map[string]string),
	}
}

func (s *TicketStore) GetByID(ctx context.Context, id string) (*models.NFTTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *TicketStore) GetByPurchaseID(ctx context.Context, purchaseID string) (*models.NFTTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[s.byPurchase[purchaseID]]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *TicketStore) CreateIfAbsent(ctx context.Context, t *models.NFTTicket) (*models.NFTTicket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPurchase[t.PurchaseID]; ok {
		existing := s.tickets[id]
		return &existing, false, nil
	}
	if _, ok := s.tokens[t.TokenID]; ok {
		return nil, false, fmt.Errorf("token %s already issued", t.TokenID)
	}

	stored := *t
	stored.CreatedAt = time.Now()
	s.tickets[stored.ID] = stored
	s.byPurchase[stored.PurchaseID] = stored.ID
	s.tokens[stored.TokenID] = stored.ID
	return &stored, true, nil
}

func (s *TicketStore) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	t.UsedAt = &at
	s.tickets[id] = t
	return true, nil
}
