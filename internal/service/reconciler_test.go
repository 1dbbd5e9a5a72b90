package service

import (
	"context"
	"testing"

	"tixledger/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_UnknownEventKind(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.svc.Reconciler.Reconcile(context.Background(), models.PaymentNotificationPayload{
		Event:     "refund",
		PaymentID: "ext-1",
	})
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Empty(t, f.audit.records)
	assert.Zero(t, testutil.CollectAndCount(f.metrics.WebhookLatency))

	outcome, err := f.notify(t, models.WebhookApproval, "ext-1", f.buy(t, 1))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)
	assert.Equal(t, 1, testutil.CollectAndCount(f.metrics.WebhookLatency))
}

func TestReconcile_UnknownPaymentIsAcknowledged(t *testing.T) {
	f := newFixture(t, 5)

	for _, event := range []string{
		models.WebhookApproval,
		models.WebhookCompletion,
		models.WebhookCancellation,
		models.WebhookIncomplete,
	} {
		outcome, err := f.svc.Reconciler.Reconcile(context.Background(), models.PaymentNotificationPayload{
			Event:     event,
			PaymentID: "ext-unknown",
			Amount:    10,
		})
		require.NoError(t, err, event)
		assert.Equal(t, models.OutcomeUnknown, outcome, event)
	}
	assert.Len(t, f.audit.records, 4)
}

func TestReconcile_AuditsEveryOutcome(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.buy(t, 1)

	f.settle(t, "ext-1", resp)
	_, err := f.notify(t, models.WebhookCompletion, "ext-1", resp)
	require.NoError(t, err)

	require.Len(t, f.audit.records, 3)
	outcomes := []string{f.audit.records[0].Outcome, f.audit.records[1].Outcome, f.audit.records[2].Outcome}
	assert.Equal(t, []string{models.OutcomeApplied, models.OutcomeApplied, models.OutcomeNoop}, outcomes)

	rec := f.audit.records[1]
	assert.Equal(t, resp.PaymentID, rec.PaymentID)
	assert.Equal(t, resp.PurchaseID, rec.PurchaseID)
	assert.Equal(t, "ext-1", rec.ExternalPaymentID)
	assert.Equal(t, models.WebhookCompletion, rec.EventKind)
	assert.Equal(t, resp.Amount, rec.ExpectedAmount)
}

func TestReconcile_OutOfOrderDeliveryConverges(t *testing.T) {
	f := newFixture(t, 5)
	resp := f.buy(t, 2)

	// approval, then completion delivered twice around a stale approval replay
	sequence := []struct {
		event string
		want  string
	}{
		{models.WebhookApproval, models.OutcomeApplied},
		{models.WebhookCompletion, models.OutcomeApplied},
		{models.WebhookApproval, models.OutcomeNoop},
		{models.WebhookCompletion, models.OutcomeNoop},
		{models.WebhookCancellation, models.OutcomeNoop},
	}
	for _, step := range sequence {
		outcome, err := f.notify(t, step.event, "ext-1", resp)
		require.NoError(t, err)
		assert.Equal(t, step.want, outcome, step.event)
	}

	tt := f.stockOf(t)
	assert.Equal(t, 3, tt.AvailableQuantity)
	assert.Equal(t, 2, tt.SoldQuantity)
}
