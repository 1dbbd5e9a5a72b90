package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/logger"
	"tixledger/internal/metrics"
	"tixledger/internal/models"
	"tixledger/internal/payment"
)

// ErrUnknownEvent is returned for a callback kind the provider protocol does not define.
var ErrUnknownEvent = errors.New("unknown webhook event")

// Reconciler is the single entry point for provider callbacks. Every kind goes
// through the payment state machine via the purchase service.
type Reconciler struct {
	purchases *PurchaseService
	audit     AuditSink
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReconciler(purchases *PurchaseService, opts Options) *Reconciler {
	return &Reconciler{
		purchases: purchases,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
}

// Reconcile returns the outcome to report back to the provider. An error is only
// returned for unknown event kinds and for failures the provider should retry.
func (r *Reconciler) Reconcile(ctx context.Context, n models.PaymentNotificationPayload) (string, error) {
	if !knownEvent(n.Event) {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, n.Event)
	}

	start := time.Now()
	defer func() {
		r.metrics.WebhookLatency.WithLabelValues(n.Event).Observe(time.Since(start).Seconds())
	}()

	var (
		result EventResult
		err    error
	)
	switch n.Event {
	case models.WebhookApproval:
		result, err = r.purchases.OnApprovalEvent(ctx, n.PaymentID, n.Amount, n.Metadata)
	case models.WebhookCompletion:
		result, err = r.purchases.OnCompletionEvent(ctx, n.PaymentID, n.TxID)
	case models.WebhookCancellation:
		result, err = r.purchases.OnCancelOrIncompleteEvent(ctx, n.PaymentID, payment.EventCancel, n.Metadata)
	case models.WebhookIncomplete:
		result, err = r.purchases.OnCancelOrIncompleteEvent(ctx, n.PaymentID, payment.EventIncomplete, n.Metadata)
	}

	outcome, reason := classify(result, err)
	r.metrics.WebhookOutcomes.WithLabelValues(n.Event, outcome).Inc()
	r.record(ctx, n, result, outcome, reason)

	log := logger.WithContext(ctx).With(
		"event", n.Event,
		"external_payment_id", n.PaymentID,
		"outcome", outcome)
	switch outcome {
	case models.OutcomeApplied:
		log.Info("Provider callback applied")
	case models.OutcomeNoop:
		log.Debug("Duplicate or out-of-order provider callback ignored")
	case models.OutcomeUnknown:
		log.Warn("Provider callback for unknown payment ignored")
	case models.OutcomeMismatch, models.OutcomeProviderError:
		// already escalated where it happened
	default:
		log.Error("Provider callback failed", "error", err)
		return outcome, err
	}

	return outcome, nil
}

func knownEvent(kind string) bool {
	switch kind {
	case models.WebhookApproval, models.WebhookCompletion, models.WebhookCancellation, models.WebhookIncomplete:
		return true
	}
	return false
}

func classify(result EventResult, err error) (outcome, reason string) {
	switch {
	case err == nil && result.Applied:
		return models.OutcomeApplied, ""
	case err == nil:
		return models.OutcomeNoop, ""
	case errors.Is(err, apperrors.ErrNotFound) && result.Payment == nil:
		return models.OutcomeUnknown, err.Error()
	case errors.Is(err, apperrors.ErrPaymentMismatch):
		return models.OutcomeMismatch, err.Error()
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		return models.OutcomeProviderError, err.Error()
	default:
		return "error", err.Error()
	}
}

func (r *Reconciler) record(ctx context.Context, n models.PaymentNotificationPayload, result EventResult, outcome, reason string) {
	rec := models.ReconciliationRecord{
		ExternalPaymentID: n.PaymentID,
		PurchaseID:        n.Metadata.PurchaseID,
		EventKind:         n.Event,
		Outcome:           outcome,
		Reason:            reason,
		ReportedAmount:    n.Amount,
		At:                r.now(),
	}
	if p := result.Payment; p != nil {
		rec.PaymentID = p.ID
		rec.ExpectedAmount = p.Amount
		if p.PurchaseID != nil {
			rec.PurchaseID = *p.PurchaseID
		}
	}

	if err := r.audit.Record(ctx, rec); err != nil {
		logger.WithContext(ctx).Warn("Failed to write reconciliation audit record",
			"error", err,
			"external_payment_id", n.PaymentID)
	}
}
