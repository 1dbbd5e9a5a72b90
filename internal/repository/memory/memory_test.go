package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/models"
	"tixledger/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, total, qty int) (*TicketTypeStore, *PurchaseStore, *TicketStore) {
	t.Helper()
	ctx := context.Background()

	stock, purchases, tickets := NewStores()
	require.NoError(t, stock.Create(ctx, &models.TicketType{
		ID:                "tt-1",
		EventID:           "ev-1",
		Price:             100,
		TotalQuantity:     total,
		AvailableQuantity: total,
		IsActive:          true,
	}))
	purchaseID := "p-1"
	require.NoError(t, purchases.CreatePending(ctx,
		&models.Purchase{ID: purchaseID, BuyerID: "b-1", TicketTypeID: "tt-1", Quantity: qty, PaymentStatus: payment.PurchasePending},
		&models.Payment{ID: "pay-1", PurchaseID: &purchaseID, Amount: int64(qty) * 100, Status: payment.StatusPending},
	))
	return stock, purchases, tickets
}

func TestPurchaseStore_CreatePendingReservesAtomically(t *testing.T) {
	stock, purchases, _ := seed(t, 5, 2)
	ctx := context.Background()

	tt, err := stock.Get(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, tt.AvailableQuantity)

	// duplicate purchase id: the units taken for it go back
	purchaseID := "p-1"
	err = purchases.CreatePending(ctx,
		&models.Purchase{ID: purchaseID, TicketTypeID: "tt-1", Quantity: 2, PaymentStatus: payment.PurchasePending},
		&models.Payment{ID: "pay-2", PurchaseID: &purchaseID, Status: payment.StatusPending},
	)
	require.Error(t, err)

	// not enough left: nothing is written
	otherID := "p-2"
	err = purchases.CreatePending(ctx,
		&models.Purchase{ID: otherID, TicketTypeID: "tt-1", Quantity: 4, PaymentStatus: payment.PurchasePending},
		&models.Payment{ID: "pay-3", PurchaseID: &otherID, Status: payment.StatusPending},
	)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	missing, err := purchases.GetPurchase(ctx, otherID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	tt, err = stock.Get(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, tt.AvailableQuantity)
	assert.Equal(t, 2, tt.Reserved())
}

func TestPurchaseStore_TransitionsLockPerPayment(t *testing.T) {
	stock, purchases, _ := seed(t, 5, 1)
	ctx := context.Background()

	secondID := "p-2"
	require.NoError(t, purchases.CreatePending(ctx,
		&models.Purchase{ID: secondID, TicketTypeID: "tt-1", Quantity: 1, PaymentStatus: payment.PurchasePending},
		&models.Payment{ID: "pay-2", PurchaseID: &secondID, Status: payment.StatusPending},
	))

	release := func(paymentID, purchaseID string) models.PaymentTransition {
		return models.PaymentTransition{
			PaymentID: paymentID, From: payment.StatusPending, To: payment.StatusCancelled, At: time.Now(),
			PurchaseID: purchaseID, PurchaseStatus: payment.PurchaseFailed,
			Stock: models.StockRelease, TicketTypeID: "tt-1", Quantity: 1,
		}
	}

	// hold pay-1's transition lock; pay-2 must not wait on it
	purchases.locks["pay-1"].Lock()

	blocked := make(chan bool, 1)
	go func() {
		applied, _ := purchases.ApplyTransition(ctx, release("pay-1", "p-1"))
		blocked <- applied
	}()

	applied, err := purchases.ApplyTransition(ctx, release("pay-2", secondID))
	require.NoError(t, err)
	assert.True(t, applied)

	select {
	case <-blocked:
		t.Fatal("transition of a locked payment went through")
	case <-time.After(50 * time.Millisecond):
	}

	purchases.locks["pay-1"].Unlock()
	select {
	case applied := <-blocked:
		assert.True(t, applied)
	case <-time.After(time.Second):
		t.Fatal("transition did not resume after the lock was released")
	}

	tt, err := stock.Get(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, tt.AvailableQuantity)
}

func TestPurchaseStore_BindExternalIDOnce(t *testing.T) {
	_, purchases, _ := seed(t, 5, 1)
	ctx := context.Background()

	bound, err := purchases.BindExternalID(ctx, "pay-1", "ext-1")
	require.NoError(t, err)
	assert.True(t, bound)

	bound, err = purchases.BindExternalID(ctx, "pay-1", "ext-2")
	require.NoError(t, err)
	assert.False(t, bound)

	pay, err := purchases.GetPaymentByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, "pay-1", pay.ID)

	missing, err := purchases.GetPaymentByExternalID(ctx, "ext-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPurchaseStore_ApplyTransitionConcurrentCAS(t *testing.T) {
	stock, purchases, _ := seed(t, 5, 3)
	ctx := context.Background()
	hash := "tx-1"

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := purchases.ApplyTransition(ctx, models.PaymentTransition{
				PaymentID:       "pay-1",
				From:            payment.StatusPending,
				To:              payment.StatusCompleted,
				TransactionHash: &hash,
				At:              time.Now(),
				PurchaseID:      "p-1",
				PurchaseStatus:  payment.PurchaseCompleted,
				Stock:           models.StockCommit,
				TicketTypeID:    "tt-1",
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

	tt, err := stock.Get(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, tt.AvailableQuantity)
	assert.Equal(t, 3, tt.SoldQuantity)

	purchase, err := purchases.GetPurchase(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, payment.PurchaseCompleted, purchase.PaymentStatus)
	require.NotNil(t, purchase.TransactionHash)
	assert.Equal(t, "tx-1", *purchase.TransactionHash)
}

func TestPurchaseStore_StaleAndMissingTickets(t *testing.T) {
	_, purchases, tickets := seed(t, 5, 1)
	ctx := context.Background()

	stale, err := purchases.ListStalePending(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	require.NoError(t, purchases.Backdate("pay-1", time.Hour))
	stale, err = purchases.ListStalePending(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	applied, err := purchases.ApplyTransition(ctx, models.PaymentTransition{
		PaymentID: "pay-1", From: payment.StatusPending, To: payment.StatusCompleted, At: time.Now(),
		PurchaseID: "p-1", PurchaseStatus: payment.PurchaseCompleted,
		Stock: models.StockCommit, TicketTypeID: "tt-1", Quantity: 1,
	})
	require.NoError(t, err)
	require.True(t, applied)

	missing, err := purchases.ListCompletedWithoutTicket(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)

	_, created, err := tickets.CreateIfAbsent(ctx, &models.NFTTicket{ID: "t-1", PurchaseID: "p-1", TokenID: "tok-1"})
	require.NoError(t, err)
	assert.True(t, created)

	missing, err = purchases.ListCompletedWithoutTicket(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestTicketStore_OnePerPurchase(t *testing.T) {
	tickets := NewTicketStore()
	ctx := context.Background()

	first, created, err := tickets.CreateIfAbsent(ctx, &models.NFTTicket{ID: "t-1", PurchaseID: "p-1", TokenID: "tok-1"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := tickets.CreateIfAbsent(ctx, &models.NFTTicket{ID: "t-2", PurchaseID: "p-1", TokenID: "tok-2"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = tickets.CreateIfAbsent(ctx, &models.NFTTicket{ID: "t-3", PurchaseID: "p-2", TokenID: "tok-1"})
	assert.Error(t, err)

	used, err := tickets.MarkUsed(ctx, "t-1", time.Now())
	require.NoError(t, err)
	assert.True(t, used)

	used, err = tickets.MarkUsed(ctx, "t-1", time.Now())
	require.NoError(t, err)
	assert.False(t, used)
}
