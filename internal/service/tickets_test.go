package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestIssue_RequiresCompletedPurchase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	resp := f.buy(t, 1)

	_, err := f.svc.Tickets.Issue(ctx, resp.PurchaseID)
	assert.ErrorIs(t, err, apperrors.ErrPurchaseNotCompleted)

	_, err = f.svc.Tickets.Issue(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIssue_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	resp := f.buy(t, 1)
	f.settle(t, "ext-1", resp)

	first, err := f.svc.Tickets.Issue(ctx, resp.PurchaseID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, err := f.svc.Tickets.Issue(ctx, resp.PurchaseID)
			assert.NoError(t, err)
			assert.Equal(t, first.ID, again.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.publisher.count(models.EventTicketIssued))
}

func TestIssue_FailureIsRetriedAsynchronously(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.minter.fail(errors.New("minter down"))
	resp := f.buy(t, 2)

	f.settle(t, "ext-1", resp)

	// settlement stands even though no ticket exists yet
	assert.Equal(t, 2, f.stockOf(t).SoldQuantity)
	ticket, err := f.tickets.GetByPurchaseID(ctx, resp.PurchaseID)
	require.NoError(t, err)
	assert.Nil(t, ticket)

	require.Equal(t, 1, f.publisher.count(models.EventTicketIssueRequested))
	retry, ok := f.publisher.last(models.EventTicketIssueRequested).(models.TicketIssueRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, resp.PurchaseID, retry.PurchaseID)
	assert.Equal(t, 1, retry.Attempt)
	assert.Contains(t, retry.LastError, "minter down")

	f.minter.fail(nil)
	issued, err := f.svc.Tickets.ReissueMissing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, issued)

	issued, err = f.svc.Tickets.ReissueMissing(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, issued)
}

func TestIssue_WithoutMinterUsesLocalToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.svc.Tickets.minter = nil
	resp := f.buy(t, 1)
	f.settle(t, "ext-1", resp)

	ticket, err := f.svc.Tickets.Issue(ctx, resp.PurchaseID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ticket.TokenID, "local-"))
	assert.Zero(t, f.minter.calls)
}

func TestRenderQRAndRedeem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	resp := f.buy(t, 1)

	_, err := f.svc.Tickets.RenderQR(ctx, buyer, resp.PurchaseID)
	assert.ErrorIs(t, err, apperrors.ErrPurchaseNotCompleted)

	f.settle(t, "ext-1", resp)

	_, err = f.svc.Tickets.RenderQR(ctx, otherBuyer, resp.PurchaseID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	png, err := f.svc.Tickets.RenderQR(ctx, buyer, resp.PurchaseID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	ticket, err := f.tickets.GetByPurchaseID(ctx, resp.PurchaseID)
	require.NoError(t, err)
	qrData := f.svc.Tickets.qrData(ticket)

	tampered := qrData[:len(qrData)-1] + "0"
	if tampered == qrData {
		tampered = qrData[:len(qrData)-1] + "1"
	}
	_, err = f.svc.Tickets.Redeem(ctx, tampered)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQRCode)

	_, err = f.svc.Tickets.Redeem(ctx, "not a ticket")
	assert.ErrorIs(t, err, apperrors.ErrInvalidQRCode)

	redeemed, err := f.svc.Tickets.Redeem(ctx, qrData)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, redeemed.TicketID)
	assert.Equal(t, resp.PurchaseID, redeemed.PurchaseID)

	_, err = f.svc.Tickets.Redeem(ctx, qrData)
	assert.ErrorIs(t, err, apperrors.ErrTicketAlreadyUsed)
}
