package repository

import (
	"context"
	"database/sql"
	"time"

	"tixledger/internal/database"
	"tixledger/internal/models"
)

type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func scanTicket(row rowScanner) (*models.NFTTicket, error) {
	t := &models.NFTTicket{}
	var usedAt sql.NullTime
	err := row.Scan(&t.ID, &t.PurchaseID, &t.TokenID, &t.IsUsed, &usedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.UsedAt = timePtr(usedAt)
	return t, nil
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.NFTTicket, error) {
	query := `SELECT id, purchase_id, token_id, is_used, used_at, created_at FROM nft_tickets WHERE id = $1`
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TicketRepository) GetByPurchaseID(ctx context.Context, purchaseID string) (*models.NFTTicket, error) {
	query := `SELECT id, purchase_id, token_id, is_used, used_at, created_at FROM nft_tickets WHERE purchase_id = $1`
	t, err := scanTicket(r.db.QueryRowContext(ctx, query, purchaseID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// CreateIfAbsent relies on the unique purchase_id constraint; a concurrent issuer
// that loses the race reads back the winner's row.
func (r *TicketRepository) CreateIfAbsent(ctx context.Context, t *models.NFTTicket) (*models.NFTTicket, bool, error) {
	query := `
		INSERT INTO nft_tickets (id, purchase_id, token_id, is_used)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (purchase_id) DO NOTHING`

	created, err := execConditional(ctx, r.db, query, t.ID, t.PurchaseID, t.TokenID)
	if err != nil {
		return nil, false, err
	}

	stored, err := r.GetByPurchaseID(ctx, t.PurchaseID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *TicketRepository) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE nft_tickets SET is_used = TRUE, used_at = $1 WHERE id = $2 AND is_used = FALSE`
	return execConditional(ctx, r.db, query, at, id)
}
