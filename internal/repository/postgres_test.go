//go:build integration

package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tixledger/internal/config"
	"tixledger/internal/database"
	apperrors "tixledger/internal/errors"
	"tixledger/internal/models"
	"tixledger/internal/payment"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: go test -tags integration ./internal/repository/ (DB_* env points at a scratch database)

func connectTestDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := config.Load().Database
	cfg.ConnectRetries = 1
	db, err := database.Connect(cfg)
	if err != nil {
		t.Skipf("PostgreSQL not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations())
	return db
}

type pgFixture struct {
	db        *database.DB
	stock     *TicketTypeRepository
	purchases *PurchaseRepository
	typeID    string
}

func newPGFixture(t *testing.T, total int) *pgFixture {
	t.Helper()
	db := connectTestDB(t)

	f := &pgFixture{
		db:        db,
		stock:     NewTicketTypeRepository(db),
		purchases: NewPurchaseRepository(db),
		typeID:    "tt-" + uuid.New().String()[:8],
	}
	require.NoError(t, f.stock.Create(context.Background(), &models.TicketType{
		ID:                f.typeID,
		EventID:           "ev-it",
		Name:              "Integration",
		Price:             100,
		Currency:          "PI",
		TotalQuantity:     total,
		AvailableQuantity: total,
		IsActive:          true,
	}))
	return f
}

func (f *pgFixture) create(t *testing.T, qty int) (*models.Purchase, *models.Payment, error) {
	t.Helper()
	purchase := &models.Purchase{
		ID:            uuid.New().String(),
		BuyerID:       "buyer-it",
		EventID:       "ev-it",
		TicketTypeID:  f.typeID,
		Quantity:      qty,
		TotalAmount:   int64(qty) * 100,
		Currency:      "PI",
		PaymentStatus: payment.PurchasePending,
	}
	purchaseID := purchase.ID
	pay := &models.Payment{
		ID:         uuid.New().String(),
		PurchaseID: &purchaseID,
		UserID:     "buyer-it",
		Amount:     purchase.TotalAmount,
		Currency:   "PI",
		Status:     payment.StatusPending,
	}
	return purchase, pay, f.purchases.CreatePending(context.Background(), purchase, pay)
}

func (f *pgFixture) counters(t *testing.T) (available, sold int) {
	t.Helper()
	tt, err := f.stock.Get(context.Background(), f.typeID)
	require.NoError(t, err)
	require.LessOrEqual(t, tt.AvailableQuantity+tt.SoldQuantity, tt.TotalQuantity)
	return tt.AvailableQuantity, tt.SoldQuantity
}

func TestPostgres_CreatePendingReservesInSameTransaction(t *testing.T) {
	f := newPGFixture(t, 3)

	_, _, err := f.create(t, 2)
	require.NoError(t, err)

	purchase, _, err := f.create(t, 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	stored, err := f.purchases.GetPurchase(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	available, sold := f.counters(t)
	assert.Equal(t, 1, available)
	assert.Equal(t, 0, sold)
}

func TestPostgres_CreatePendingUnknownTicketType(t *testing.T) {
	f := newPGFixture(t, 3)
	f.typeID = "tt-missing-" + uuid.New().String()[:8]

	_, _, err := f.create(t, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgres_ApplyTransitionConcurrentCommit(t *testing.T) {
	f := newPGFixture(t, 5)
	purchase, pay, err := f.create(t, 3)
	require.NoError(t, err)

	hash := "tx-it"
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := f.purchases.ApplyTransition(context.Background(), models.PaymentTransition{
				PaymentID:       pay.ID,
				From:            payment.StatusPending,
				To:              payment.StatusCompleted,
				TransactionHash: &hash,
				At:              time.Now(),
				PurchaseID:      purchase.ID,
				PurchaseStatus:  payment.PurchaseCompleted,
				Stock:           models.StockCommit,
				TicketTypeID:    f.typeID,
				Quantity:        3,
			})
			assert.NoError(t, err)
			if applied {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	available, sold := f.counters(t)
	assert.Equal(t, 2, available)
	assert.Equal(t, 3, sold)

	stored, err := f.purchases.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionHash)
	assert.Equal(t, hash, *stored.TransactionHash)
	assert.NotNil(t, stored.CompletedAt)
}

func TestPostgres_ApplyTransitionRollsBackWhenStockStepFails(t *testing.T) {
	f := newPGFixture(t, 5)
	purchase, pay, err := f.create(t, 2)
	require.NoError(t, err)

	// releasing more than the purchase holds trips the release guard
	applied, err := f.purchases.ApplyTransition(context.Background(), models.PaymentTransition{
		PaymentID:      pay.ID,
		From:           payment.StatusPending,
		To:             payment.StatusCancelled,
		At:             time.Now(),
		PurchaseID:     purchase.ID,
		PurchaseStatus: payment.PurchaseFailed,
		Stock:          models.StockRelease,
		TicketTypeID:   f.typeID,
		Quantity:       4,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
	assert.False(t, applied)

	stored, err := f.purchases.GetPayment(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)

	storedPurchase, err := f.purchases.GetPurchase(context.Background(), purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.PurchasePending, storedPurchase.PaymentStatus)

	available, _ := f.counters(t)
	assert.Equal(t, 3, available)
}

func TestPostgres_StockGuards(t *testing.T) {
	f := newPGFixture(t, 4)
	ctx := context.Background()
	_, _, err := f.create(t, 2)
	require.NoError(t, err)

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{"release beyond reserved", func() error { return f.stock.Release(ctx, f.typeID, 3) }, apperrors.ErrInvalidQuantity},
		{"commit beyond reserved", func() error { return f.stock.Commit(ctx, f.typeID, 3) }, apperrors.ErrInvalidQuantity},
		{"reserve beyond available", func() error { return f.stock.Reserve(ctx, f.typeID, 3) }, apperrors.ErrInsufficientStock},
		{"zero quantity", func() error { return f.stock.Reserve(ctx, f.typeID, 0) }, apperrors.ErrInvalidQuantity},
		{"unknown type", func() error { return f.stock.Release(ctx, "tt-none", 1) }, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), tt.wantErr)
		})
	}

	available, sold := f.counters(t)
	assert.Equal(t, 2, available)
	assert.Equal(t, 0, sold)
}

func TestPostgres_ListStalePendingSkipsSettled(t *testing.T) {
	f := newPGFixture(t, 5)
	ctx := context.Background()

	_, stale, err := f.create(t, 1)
	require.NoError(t, err)
	approvedPurchase, approved, err := f.create(t, 1)
	require.NoError(t, err)

	_, err = f.db.ExecContext(ctx, `UPDATE payments SET created_at = NOW() - INTERVAL '1 hour' WHERE id IN ($1, $2)`,
		stale.ID, approved.ID)
	require.NoError(t, err)

	applied, err := f.purchases.ApplyTransition(ctx, models.PaymentTransition{
		PaymentID: approved.ID, From: payment.StatusPending, To: payment.StatusApproved, At: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, applied)

	payments, err := f.purchases.ListStalePending(ctx, time.Now().Add(-time.Minute), 1000)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, p := range payments {
		ids[p.ID] = true
	}
	assert.True(t, ids[stale.ID])
	assert.False(t, ids[approved.ID], "purchase %s is approved", approvedPurchase.ID)
}
