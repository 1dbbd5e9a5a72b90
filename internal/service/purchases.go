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
	"tixledger/internal/repository"

	"github.com/google/uuid"
)

const sweepBatchSize = 500

// EventResult is what a provider callback resolved to
type EventResult struct {
	Applied bool
	// Payment is the stored payment the callback was matched to, nil when unknown
	Payment *models.Payment
}

// PurchaseService reserves stock for buyers and drives purchases to a terminal
// state from provider callbacks and the TTL sweep.
type PurchaseService struct {
	ticketTypes repository.TicketTypeStore
	purchases   repository.PurchaseStore
	tickets     *TicketService
	publisher   Publisher
	provider    PaymentProvider
	cache       StatusCache
	metrics     *metrics.Metrics
	fees        Fees
	now         func() time.Time
}

func NewPurchaseService(ticketTypes repository.TicketTypeStore, purchases repository.PurchaseStore, tickets *TicketService, opts Options) *PurchaseService {
	return &PurchaseService{
		ticketTypes: ticketTypes,
		purchases:   purchases,
		tickets:     tickets,
		publisher:   opts.Publisher,
		provider:    opts.Provider,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		fees:        opts.Fees,
		now:         opts.Now,
	}
}

func (s *PurchaseService) CreatePurchase(ctx context.Context, buyerID, ticketTypeID string, quantity int) (*models.CreatePurchaseResponse, error) {
	if quantity <= 0 {
		return nil, apperrors.ErrInvalidQuantity
	}

	tt, err := s.ticketTypes.Get(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if !tt.IsActive {
		s.metrics.Reservations.WithLabelValues("inactive").Inc()
		return nil, apperrors.ErrTicketTypeInactive
	}
	if !tt.InSaleWindow(s.now()) {
		s.metrics.Reservations.WithLabelValues("sale_window_closed").Inc()
		return nil, apperrors.ErrSaleWindowClosed
	}

	purchase := &models.Purchase{
		ID:            uuid.New().String(),
		BuyerID:       buyerID,
		EventID:       tt.EventID,
		TicketTypeID:  tt.ID,
		Quantity:      quantity,
		TotalAmount:   tt.Price*int64(quantity) + s.fees.Total(),
		Currency:      tt.Currency,
		PaymentStatus: payment.PurchasePending,
	}
	purchaseID := purchase.ID
	pay := &models.Payment{
		ID:         uuid.New().String(),
		PurchaseID: &purchaseID,
		UserID:     buyerID,
		Amount:     purchase.TotalAmount,
		Currency:   purchase.Currency,
		Memo:       fmt.Sprintf("%d x %s", quantity, tt.Name),
		Status:     payment.StatusPending,
	}

	if err := s.purchases.CreatePending(ctx, purchase, pay); err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			s.metrics.Reservations.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.metrics.Reservations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	s.metrics.Reservations.WithLabelValues("reserved").Inc()

	s.publish(ctx, models.EventPurchaseCreated, models.PurchaseCreatedEvent{
		PurchaseID:   purchase.ID,
		PaymentID:    pay.ID,
		BuyerID:      buyerID,
		TicketTypeID: tt.ID,
		Quantity:     quantity,
		Amount:       pay.Amount,
		Timestamp:    s.now(),
	})

	return &models.CreatePurchaseResponse{
		PurchaseID: purchase.ID,
		PaymentID:  pay.ID,
		Amount:     pay.Amount,
		Currency:   pay.Currency,
		Memo:       pay.Memo,
		Metadata: models.PaymentMetadata{
			EventID:    tt.EventID,
			TicketID:   tt.ID,
			PurchaseID: purchase.ID,
			TicketType: tt.Name,
			Quantity:   quantity,
		},
	}, nil
}

// OnApprovalEvent verifies the reported amount and purchase against the stored
// payment before approving it server-side. A disagreement leaves the payment as
// it is and returns ErrPaymentMismatch.
func (s *PurchaseService) OnApprovalEvent(ctx context.Context, externalPaymentID string, reportedAmount int64, meta models.PaymentMetadata) (EventResult, error) {
	pay, err := s.resolvePayment(ctx, externalPaymentID, meta)
	if err != nil {
		return EventResult{Payment: pay}, err
	}
	result := EventResult{Payment: pay}

	if reportedAmount != pay.Amount {
		return result, s.mismatch(ctx, pay, externalPaymentID, reportedAmount,
			fmt.Sprintf("amount %d, expected %d", reportedAmount, pay.Amount))
	}

	if pay.ExternalPaymentID == nil {
		if err := s.bind(ctx, pay, externalPaymentID, reportedAmount); err != nil {
			return result, err
		}
	}

	next, ok := payment.Transition(pay.Status, payment.EventApprove)
	if !ok {
		// A redelivered approval retries the server-side approval, which may not
		// have reached the provider the first time. The provider call is idempotent.
		if pay.Status == payment.StatusApproved {
			return result, s.approveWithProvider(ctx, pay, externalPaymentID)
		}
		return result, nil
	}

	applied, err := s.purchases.ApplyTransition(ctx, models.PaymentTransition{
		PaymentID: pay.ID,
		From:      pay.Status,
		To:        next,
		At:        s.now(),
	})
	if err != nil {
		return result, fmt.Errorf("failed to approve payment: %w", err)
	}
	if !applied {
		return result, nil
	}
	result.Applied = true
	pay.Status = next

	s.publish(ctx, models.EventPaymentApproved, models.PaymentApprovedEvent{
		PaymentID:         pay.ID,
		ExternalPaymentID: externalPaymentID,
		PurchaseID:        stringValue(pay.PurchaseID),
		Timestamp:         s.now(),
	})

	return result, s.approveWithProvider(ctx, pay, externalPaymentID)
}

func (s *PurchaseService) approveWithProvider(ctx context.Context, pay *models.Payment, externalPaymentID string) error {
	if err := s.provider.Approve(ctx, externalPaymentID); err != nil {
		s.metrics.ProviderFailures.WithLabelValues("approve").Inc()
		logger.WithContext(ctx).Error("Provider approval failed",
			"error", err,
			"payment_id", pay.ID,
			"external_payment_id", externalPaymentID)
		return fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err)
	}
	return nil
}

// OnCompletionEvent settles an approved payment: the payment, the purchase and the
// sold counter move together, then a ticket is issued.
func (s *PurchaseService) OnCompletionEvent(ctx context.Context, externalPaymentID, txHash string) (EventResult, error) {
	pay, err := s.purchases.GetPaymentByExternalID(ctx, externalPaymentID)
	if err != nil {
		return EventResult{}, fmt.Errorf("failed to get payment: %w", err)
	}
	if pay == nil {
		return EventResult{}, apperrors.ErrNotFound
	}
	result := EventResult{Payment: pay}

	next, ok := payment.Transition(pay.Status, payment.EventComplete)
	if !ok {
		return result, nil
	}

	t := models.PaymentTransition{
		PaymentID: pay.ID,
		From:      pay.Status,
		To:        next,
		At:        s.now(),
	}
	if txHash != "" {
		t.TransactionHash = &txHash
	}

	var purchase *models.Purchase
	if pay.PurchaseID != nil {
		purchase, err = s.purchases.GetPurchase(ctx, *pay.PurchaseID)
		if err != nil {
			return result, fmt.Errorf("failed to get purchase: %w", err)
		}
		if purchase == nil {
			return result, fmt.Errorf("purchase %s of payment %s: %w", *pay.PurchaseID, pay.ID, apperrors.ErrNotFound)
		}
		t.PurchaseID = purchase.ID
		t.PurchaseStatus = payment.PurchaseStatusFor(next)
		t.Stock = models.StockCommit
		t.TicketTypeID = purchase.TicketTypeID
		t.Quantity = purchase.Quantity
	}

	applied, err := s.purchases.ApplyTransition(ctx, t)
	if err != nil {
		return result, fmt.Errorf("failed to complete payment: %w", err)
	}
	if !applied {
		return result, nil
	}
	result.Applied = true
	pay.Status = next
	pay.TransactionHash = t.TransactionHash

	s.publish(ctx, models.EventPaymentCompleted, models.PaymentCompletedEvent{
		PaymentID:         pay.ID,
		ExternalPaymentID: externalPaymentID,
		PurchaseID:        t.PurchaseID,
		TransactionHash:   txHash,
		Timestamp:         s.now(),
	})

	if purchase != nil {
		ctx = logger.ContextWithPurchaseID(ctx, purchase.ID)
		if _, err := s.tickets.Issue(ctx, purchase.ID); err != nil {
			s.tickets.RequestRetry(ctx, purchase.ID, 1, err)
		}
	}

	if err := s.provider.Complete(ctx, externalPaymentID, txHash); err != nil {
		s.metrics.ProviderFailures.WithLabelValues("complete").Inc()
		logger.WithContext(ctx).Error("Provider completion acknowledgement failed",
			"error", err,
			"payment_id", pay.ID,
			"external_payment_id", externalPaymentID)
		return result, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, err)
	}

	return result, nil
}

// OnCancelOrIncompleteEvent applies a provider cancellation or an incomplete
// report. The reservation is released exactly once, by whichever call wins the
// status swap.
func (s *PurchaseService) OnCancelOrIncompleteEvent(ctx context.Context, externalPaymentID string, event payment.Event, meta models.PaymentMetadata) (EventResult, error) {
	if event != payment.EventCancel && event != payment.EventIncomplete {
		return EventResult{}, fmt.Errorf("unexpected event %q: %w", event, apperrors.ErrInvalidTransition)
	}

	pay, err := s.resolvePayment(ctx, externalPaymentID, meta)
	if err != nil {
		return EventResult{Payment: pay}, err
	}
	result := EventResult{Payment: pay}

	if pay.ExternalPaymentID == nil {
		if err := s.bind(ctx, pay, externalPaymentID, 0); err != nil {
			return result, err
		}
	}

	applied, err := s.fail(ctx, pay, event, "provider reported "+string(event))
	result.Applied = applied
	return result, err
}

// CancelPurchase lets the buyer abandon a purchase whose payment has not been
// approved yet.
func (s *PurchaseService) CancelPurchase(ctx context.Context, buyerID, purchaseID string) error {
	purchase, err := s.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil {
		return apperrors.ErrNotFound
	}
	if purchase.BuyerID != buyerID {
		return apperrors.ErrForbidden
	}

	pay, err := s.purchases.GetPaymentByPurchaseID(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if pay == nil {
		return apperrors.ErrNotFound
	}
	if pay.Status != payment.StatusPending {
		return apperrors.ErrInvalidTransition
	}

	applied, err := s.fail(ctx, pay, payment.EventCancel, "cancelled by buyer")
	if err != nil {
		return err
	}
	if !applied {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

// ExpireStale cancels payments still pending after ttl and returns their stock.
// It returns how many purchases were expired.
func (s *PurchaseService) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	stale, err := s.purchases.ListStalePending(ctx, s.now().Add(-ttl), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	expired := 0
	for i := range stale {
		pay := &stale[i]
		applied, err := s.fail(ctx, pay, payment.EventExpire, apperrors.ErrReservationExpired.Error())
		if err != nil {
			logger.WithContext(ctx).Error("Failed to expire purchase",
				"error", err,
				"payment_id", pay.ID,
				"purchase_id", stringValue(pay.PurchaseID))
			continue
		}
		if !applied {
			continue
		}
		expired++
		s.metrics.ExpiredPurchases.Inc()
	}

	return expired, nil
}

func (s *PurchaseService) Availability(ctx context.Context, ticketTypeID string, quantity int) (*models.AvailabilityResponse, error) {
	if quantity <= 0 {
		return nil, apperrors.ErrInvalidQuantity
	}

	tt, err := s.ticketTypes.Get(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	switch {
	case !tt.IsActive:
		return &models.AvailabilityResponse{Reason: apperrors.ErrTicketTypeInactive.Error()}, nil
	case !tt.InSaleWindow(s.now()):
		return &models.AvailabilityResponse{Reason: apperrors.ErrSaleWindowClosed.Error()}, nil
	case tt.AvailableQuantity < quantity:
		return &models.AvailabilityResponse{
			Reason: fmt.Sprintf("only %d tickets available", tt.AvailableQuantity),
		}, nil
	}
	return &models.AvailabilityResponse{Available: true}, nil
}

// PurchaseStatus reads terminal answers from the cache; pending ones are always live.
// Only the buyer who made the purchase may read it.
func (s *PurchaseService) PurchaseStatus(ctx context.Context, buyerID, purchaseID string) (*models.PurchaseStatusResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.GetPurchaseStatus(ctx, purchaseID)
		if err != nil {
			logger.WithContext(ctx).Warn("Purchase status cache read failed", "error", err, "purchase_id", purchaseID)
		} else if cached != nil && cached.BuyerID != "" {
			if cached.BuyerID != buyerID {
				return nil, apperrors.ErrForbidden
			}
			return cached, nil
		}
	}

	purchase, err := s.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil {
		return nil, apperrors.ErrNotFound
	}
	if purchase.BuyerID != buyerID {
		return nil, apperrors.ErrForbidden
	}

	status := &models.PurchaseStatusResponse{
		PurchaseID:      purchase.ID,
		BuyerID:         purchase.BuyerID,
		PaymentStatus:   string(purchase.PaymentStatus),
		TransactionHash: purchase.TransactionHash,
	}

	if s.cache != nil && purchase.PaymentStatus.IsTerminal() {
		if err := s.cache.SetPurchaseStatus(ctx, status); err != nil {
			logger.WithContext(ctx).Warn("Purchase status cache write failed", "error", err, "purchase_id", purchaseID)
		}
	}

	return status, nil
}

// resolvePayment finds the payment of a callback by its provider id, falling back
// to the purchase echoed in the metadata for payments that are not bound yet.
func (s *PurchaseService) resolvePayment(ctx context.Context, externalPaymentID string, meta models.PaymentMetadata) (*models.Payment, error) {
	pay, err := s.purchases.GetPaymentByExternalID(ctx, externalPaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if pay != nil {
		if meta.PurchaseID != "" && meta.PurchaseID != stringValue(pay.PurchaseID) {
			return pay, s.mismatch(ctx, pay, externalPaymentID, 0,
				fmt.Sprintf("purchase %s, expected %s", meta.PurchaseID, stringValue(pay.PurchaseID)))
		}
		return pay, nil
	}

	if meta.PurchaseID == "" {
		return nil, apperrors.ErrNotFound
	}
	pay, err = s.purchases.GetPaymentByPurchaseID(ctx, meta.PurchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if pay == nil {
		return nil, apperrors.ErrNotFound
	}
	if pay.ExternalPaymentID != nil && *pay.ExternalPaymentID != externalPaymentID {
		return pay, s.mismatch(ctx, pay, externalPaymentID, 0,
			fmt.Sprintf("purchase already paid by %s", *pay.ExternalPaymentID))
	}
	return pay, nil
}

// bind sets the provider id once. Losing the race to another provider id is a mismatch.
func (s *PurchaseService) bind(ctx context.Context, pay *models.Payment, externalPaymentID string, reportedAmount int64) error {
	bound, err := s.purchases.BindExternalID(ctx, pay.ID, externalPaymentID)
	if err != nil {
		return fmt.Errorf("failed to bind external payment id: %w", err)
	}
	if !bound {
		current, err := s.purchases.GetPayment(ctx, pay.ID)
		if err != nil {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if current == nil || current.ExternalPaymentID == nil || *current.ExternalPaymentID != externalPaymentID {
			return s.mismatch(ctx, pay, externalPaymentID, reportedAmount, "payment bound to another provider id")
		}
		*pay = *current
		return nil
	}
	pay.ExternalPaymentID = &externalPaymentID
	return nil
}

// fail moves pay to a failed terminal status and releases its reservation in the
// same unit. Payments without a purchase only change status.
func (s *PurchaseService) fail(ctx context.Context, pay *models.Payment, event payment.Event, reason string) (bool, error) {
	next, ok := payment.Transition(pay.Status, event)
	if !ok {
		return false, nil
	}

	t := models.PaymentTransition{
		PaymentID: pay.ID,
		From:      pay.Status,
		To:        next,
		At:        s.now(),
	}

	var purchase *models.Purchase
	if pay.PurchaseID != nil {
		var err error
		purchase, err = s.purchases.GetPurchase(ctx, *pay.PurchaseID)
		if err != nil {
			return false, fmt.Errorf("failed to get purchase: %w", err)
		}
		if purchase == nil {
			return false, fmt.Errorf("purchase %s of payment %s: %w", *pay.PurchaseID, pay.ID, apperrors.ErrNotFound)
		}
		t.PurchaseID = purchase.ID
		t.PurchaseStatus = payment.PurchaseStatusFor(next)
		t.Stock = models.StockRelease
		t.TicketTypeID = purchase.TicketTypeID
		t.Quantity = purchase.Quantity
	}

	applied, err := s.purchases.ApplyTransition(ctx, t)
	if err != nil {
		return false, fmt.Errorf("failed to apply %s: %w", event, err)
	}
	if !applied {
		return false, nil
	}
	pay.Status = next

	if purchase != nil {
		s.metrics.StockReleased.Add(float64(purchase.Quantity))
	}

	s.publish(ctx, models.EventPaymentFailed, models.PaymentFailedEvent{
		PaymentID:  pay.ID,
		PurchaseID: t.PurchaseID,
		Status:     string(next),
		Reason:     reason,
		Timestamp:  s.now(),
	})
	if event == payment.EventExpire && purchase != nil {
		s.publish(ctx, models.EventPurchaseExpired, models.PurchaseExpiredEvent{
			PurchaseID:   purchase.ID,
			PaymentID:    pay.ID,
			TicketTypeID: purchase.TicketTypeID,
			Quantity:     purchase.Quantity,
			Reason:       reason,
			Timestamp:    s.now(),
		})
	}

	logger.WithContext(ctx).Info("Payment settled as failed",
		"payment_id", pay.ID,
		"purchase_id", t.PurchaseID,
		"status", next,
		"reason", reason)

	return true, nil
}

func (s *PurchaseService) mismatch(ctx context.Context, pay *models.Payment, externalPaymentID string, reportedAmount int64, reason string) error {
	s.metrics.PaymentMismatch.Inc()

	logger.WithContext(ctx).Error("Payment mismatch, manual reconciliation required",
		"payment_id", pay.ID,
		"external_payment_id", externalPaymentID,
		"purchase_id", stringValue(pay.PurchaseID),
		"reported_amount", reportedAmount,
		"expected_amount", pay.Amount,
		"reason", reason)

	s.publish(ctx, models.EventPaymentMismatch, models.PaymentMismatchEvent{
		PaymentID:         pay.ID,
		ExternalPaymentID: externalPaymentID,
		PurchaseID:        stringValue(pay.PurchaseID),
		ReportedAmount:    reportedAmount,
		ExpectedAmount:    pay.Amount,
		Reason:            reason,
		Timestamp:         s.now(),
	})

	return fmt.Errorf("%w: %s", apperrors.ErrPaymentMismatch, reason)
}

func (s *PurchaseService) publish(ctx context.Context, subject string, data interface{}) {
	publish(ctx, s.publisher, subject, data)
}

func publish(ctx context.Context, publisher Publisher, subject string, data interface{}) {
	if err := publisher.Publish(subject, data); err != nil {
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err,
			"event_type", subject)
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
