package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/external"
	"tixledger/internal/logger"
	"tixledger/internal/metrics"
	"tixledger/internal/models"
	"tixledger/internal/payment"
	"tixledger/internal/repository"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// TicketService issues at most one NFT ticket per completed purchase
type TicketService struct {
	purchases repository.PurchaseStore
	tickets   repository.TicketStore
	minter    TokenMinter
	publisher Publisher
	metrics   *metrics.Metrics
	qrSecret  []byte
	now       func() time.Time
}

func NewTicketService(purchases repository.PurchaseStore, tickets repository.TicketStore, opts Options) *TicketService {
	return &TicketService{
		purchases: purchases,
		tickets:   tickets,
		minter:    opts.Minter,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		qrSecret:  []byte(opts.QRSecret),
		now:       opts.Now,
	}
}

// Issue returns the ticket of a completed purchase, minting it on first call.
// Concurrent calls converge on the single stored ticket.
func (s *TicketService) Issue(ctx context.Context, purchaseID string) (*models.NFTTicket, error) {
	purchase, err := s.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if purchase == nil {
		return nil, apperrors.ErrNotFound
	}
	if purchase.PaymentStatus != payment.PurchaseCompleted {
		return nil, apperrors.ErrPurchaseNotCompleted
	}

	existing, err := s.tickets.GetByPurchaseID(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	tokenID, err := s.mint(ctx, purchase)
	if err != nil {
		return nil, err
	}

	ticket, created, err := s.tickets.CreateIfAbsent(ctx, &models.NFTTicket{
		ID:         uuid.New().String(),
		PurchaseID: purchaseID,
		TokenID:    tokenID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store ticket: %w", err)
	}

	if created {
		s.metrics.TicketsIssued.Inc()
		publish(ctx, s.publisher, models.EventTicketIssued, models.TicketIssuedEvent{
			TicketID:   ticket.ID,
			PurchaseID: purchaseID,
			TokenID:    ticket.TokenID,
			Timestamp:  s.now(),
		})
		logger.WithContext(ctx).Info("Ticket issued",
			"ticket_id", ticket.ID,
			"purchase_id", purchaseID,
			"token_id", ticket.TokenID)
	}

	return ticket, nil
}

func (s *TicketService) mint(ctx context.Context, purchase *models.Purchase) (string, error) {
	if s.minter == nil {
		return "local-" + uuid.New().String(), nil
	}

	tokenID, err := s.minter.Mint(ctx, external.MintRequest{
		PurchaseID:   purchase.ID,
		EventID:      purchase.EventID,
		TicketTypeID: purchase.TicketTypeID,
		Quantity:     purchase.Quantity,
		Owner:        purchase.BuyerID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to mint ticket token: %w", err)
	}
	return tokenID, nil
}

// RequestRetry hands a failed issuance to the asynchronous consumers.
func (s *TicketService) RequestRetry(ctx context.Context, purchaseID string, attempt int, cause error) {
	s.metrics.IssueFailures.Inc()

	logger.WithContext(ctx).Warn("Ticket issuance failed, scheduling retry",
		"error", cause,
		"purchase_id", purchaseID,
		"attempt", attempt)

	publish(ctx, s.publisher, models.EventTicketIssueRequested, models.TicketIssueRequestedEvent{
		PurchaseID: purchaseID,
		Attempt:    attempt,
		LastError:  cause.Error(),
		Timestamp:  s.now(),
	})
}

// ReissueMissing issues tickets for completed purchases that have none and returns
// how many were issued.
func (s *TicketService) ReissueMissing(ctx context.Context, limit int) (int, error) {
	purchases, err := s.purchases.ListCompletedWithoutTicket(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list purchases without ticket: %w", err)
	}

	issued := 0
	for _, p := range purchases {
		if _, err := s.Issue(ctx, p.ID); err != nil {
			logger.WithContext(ctx).Warn("Ticket reissue failed", "error", err, "purchase_id", p.ID)
			continue
		}
		issued++
	}
	return issued, nil
}

// RenderQR returns a PNG carrying the signed ticket reference of the buyer's purchase.
func (s *TicketService) RenderQR(ctx context.Context, buyerID, purchaseID string) ([]byte, error) {
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

	ticket, err := s.Issue(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(s.qrData(ticket), qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

// Redeem marks the ticket behind qrData as used. A ticket is redeemable once.
func (s *TicketService) Redeem(ctx context.Context, qrData string) (*models.RedeemTicketResponse, error) {
	purchaseID, ticketID, err := s.parseQRData(qrData)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil || ticket.PurchaseID != purchaseID {
		return nil, apperrors.ErrNotFound
	}
	if !hmac.Equal([]byte(s.qrData(ticket)), []byte(qrData)) {
		return nil, apperrors.ErrInvalidQRCode
	}

	usedAt := s.now()
	ok, err := s.tickets.MarkUsed(ctx, ticket.ID, usedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem ticket: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrTicketAlreadyUsed
	}

	return &models.RedeemTicketResponse{
		TicketID:   ticket.ID,
		PurchaseID: ticket.PurchaseID,
		TokenID:    ticket.TokenID,
		UsedAt:     usedAt,
	}, nil
}

func (s *TicketService) qrData(t *models.NFTTicket) string {
	return fmt.Sprintf("purchase:%s;ticket:%s;token:%s;signature:%s",
		t.PurchaseID, t.ID, t.TokenID, s.sign(t))
}

func (s *TicketService) sign(t *models.NFTTicket) string {
	h := hmac.New(sha256.New, s.qrSecret)
	h.Write([]byte(t.PurchaseID + ":" + t.ID + ":" + t.TokenID))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *TicketService) parseQRData(qrData string) (purchaseID, ticketID string, err error) {
	parts := strings.Split(qrData, ";")
	if len(parts) != 4 ||
		!strings.HasPrefix(parts[0], "purchase:") ||
		!strings.HasPrefix(parts[1], "ticket:") ||
		!strings.HasPrefix(parts[2], "token:") ||
		!strings.HasPrefix(parts[3], "signature:") {
		return "", "", apperrors.ErrInvalidQRCode
	}
	return strings.TrimPrefix(parts[0], "purchase:"), strings.TrimPrefix(parts[1], "ticket:"), nil
}
