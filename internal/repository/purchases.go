package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tixledger/internal/database"
	"tixledger/internal/models"
	"tixledger/internal/payment"
)

type PurchaseRepository struct {
	db *database.DB
}

func NewPurchaseRepository(db *database.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `id, buyer_id, event_id, ticket_type_id, quantity, total_amount, currency,
		       payment_status, transaction_hash, created_at, updated_at`

const paymentColumns = `id, purchase_id, user_id, amount, currency, memo, status,
		       external_payment_id, transaction_hash, completed_at, created_at, updated_at`

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	p := &models.Purchase{}
	var txHash sql.NullString
	err := row.Scan(
		&p.ID,
		&p.BuyerID,
		&p.EventID,
		&p.TicketTypeID,
		&p.Quantity,
		&p.TotalAmount,
		&p.Currency,
		&p.PaymentStatus,
		&txHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TransactionHash = stringPtr(txHash)
	return p, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var purchaseID, externalID, txHash sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&purchaseID,
		&p.UserID,
		&p.Amount,
		&p.Currency,
		&p.Memo,
		&p.Status,
		&externalID,
		&txHash,
		&completedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PurchaseID = stringPtr(purchaseID)
	p.ExternalPaymentID = stringPtr(externalID)
	p.TransactionHash = stringPtr(txHash)
	p.CompletedAt = timePtr(completedAt)
	return p, nil
}

// CreatePending reserves the units and inserts both rows in one transaction, so a
// reservation never exists without the purchase the sweep can expire.
func (r *PurchaseRepository) CreatePending(ctx context.Context, purchase *models.Purchase, pay *models.Payment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := reserveStock(ctx, tx, purchase.TicketTypeID, purchase.Quantity); err != nil {
		return err
	}

	purchaseQuery := `
		INSERT INTO purchases (id, buyer_id, event_id, ticket_type_id, quantity, total_amount, currency, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, purchaseQuery,
		purchase.ID,
		purchase.BuyerID,
		purchase.EventID,
		purchase.TicketTypeID,
		purchase.Quantity,
		purchase.TotalAmount,
		purchase.Currency,
		purchase.PaymentStatus,
	).Scan(&purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}

	paymentQuery := `
		INSERT INTO payments (id, purchase_id, user_id, amount, currency, memo, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, paymentQuery,
		pay.ID,
		nullString(pay.PurchaseID),
		pay.UserID,
		pay.Amount,
		pay.Currency,
		pay.Memo,
		pay.Status,
	).Scan(&pay.CreatedAt, &pay.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	return tx.Commit()
}

func (r *PurchaseRepository) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PurchaseRepository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return r.getPaymentBy(ctx, "id", id)
}

func (r *PurchaseRepository) GetPaymentByPurchaseID(ctx context.Context, purchaseID string) (*models.Payment, error) {
	return r.getPaymentBy(ctx, "purchase_id", purchaseID)
}

// GetPaymentByExternalID retrieves a payment by the id the provider assigned to it
func (r *PurchaseRepository) GetPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error) {
	return r.getPaymentBy(ctx, "external_payment_id", externalPaymentID)
}

func (r *PurchaseRepository) getPaymentBy(ctx context.Context, column, value string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *PurchaseRepository) BindExternalID(ctx context.Context, paymentID, externalPaymentID string) (bool, error) {
	query := `
		UPDATE payments
		SET external_payment_id = $1, updated_at = NOW()
		WHERE id = $2 AND external_payment_id IS NULL`

	return execConditional(ctx, r.db, query, externalPaymentID, paymentID)
}

func (r *PurchaseRepository) ApplyTransition(ctx context.Context, t models.PaymentTransition) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var completedAt *time.Time
	if t.To == payment.StatusCompleted {
		at := t.At
		completedAt = &at
	}

	paymentQuery := `
		UPDATE payments
		SET status = $1,
		    transaction_hash = COALESCE($2, transaction_hash),
		    completed_at = COALESCE($3, completed_at),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5`

	applied, err := execConditional(ctx, tx, paymentQuery,
		t.To, nullString(t.TransactionHash), completedAt, t.PaymentID, t.From)
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	if !applied {
		return false, nil
	}

	if t.PurchaseID != "" {
		purchaseQuery := `
			UPDATE purchases
			SET payment_status = $1,
			    transaction_hash = COALESCE($2, transaction_hash),
			    updated_at = NOW()
			WHERE id = $3 AND payment_status = $4`

		ok, err := execConditional(ctx, tx, purchaseQuery,
			t.PurchaseStatus, nullString(t.TransactionHash), t.PurchaseID, payment.PurchasePending)
		if err != nil {
			return false, fmt.Errorf("failed to update purchase status: %w", err)
		}
		if !ok {
			return false, fmt.Errorf("purchase %s is not pending", t.PurchaseID)
		}
	}

	switch t.Stock {
	case models.StockCommit:
		err = commitStock(ctx, tx, t.TicketTypeID, t.Quantity)
	case models.StockRelease:
		err = releaseStock(ctx, tx, t.TicketTypeID, t.Quantity)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListStalePending retrieves pending payments created before the given time
func (r *PurchaseRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'PENDING'
		  AND purchase_id IS NOT NULL
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.ExecuteWithRetry(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}

	return payments, rows.Err()
}

func (r *PurchaseRepository) ListCompletedWithoutTicket(ctx context.Context, limit int) ([]models.Purchase, error) {
	query := `
		SELECT p.id, p.buyer_id, p.event_id, p.ticket_type_id, p.quantity, p.total_amount, p.currency,
		       p.payment_status, p.transaction_hash, p.created_at, p.updated_at
		FROM purchases p
		LEFT JOIN nft_tickets t ON t.purchase_id = p.id
		WHERE p.payment_status = 'completed' AND t.id IS NULL
		ORDER BY p.updated_at ASC
		LIMIT $1`

	rows, err := r.db.ExecuteWithRetry(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}

	return purchases, rows.Err()
}
