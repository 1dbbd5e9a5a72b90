package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tixledger/internal/database"
	apperrors "tixledger/internal/errors"
	"tixledger/internal/models"
)

// TicketTypeRepository is the PostgreSQL stock ledger. Every counter change is a
// single conditional UPDATE on one row, so ticket types never block each other.
type TicketTypeRepository struct {
	db *database.DB
}

func NewTicketTypeRepository(db *database.DB) *TicketTypeRepository {
	return &TicketTypeRepository{db: db}
}

const (
	reserveStockQuery = `
		UPDATE ticket_types
		SET available_quantity = available_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity >= $2`

	releaseStockQuery = `
		UPDATE ticket_types
		SET available_quantity = available_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity + sold_quantity + $2 <= total_quantity`

	commitStockQuery = `
		UPDATE ticket_types
		SET sold_quantity = sold_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND available_quantity + sold_quantity + $2 <= total_quantity`
)

func (r *TicketTypeRepository) Create(ctx context.Context, tt *models.TicketType) error {
	query := `
		INSERT INTO ticket_types (id, event_id, name, price, currency, total_quantity,
		                          available_quantity, sold_quantity, is_active, sale_start, sale_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Name,
		tt.Price,
		tt.Currency,
		tt.TotalQuantity,
		tt.AvailableQuantity,
		tt.SoldQuantity,
		tt.IsActive,
		tt.SaleStart,
		tt.SaleEnd,
	).Scan(&tt.CreatedAt, &tt.UpdatedAt)
}

func (r *TicketTypeRepository) Get(ctx context.Context, id string) (*models.TicketType, error) {
	tt := &models.TicketType{}
	var saleStart, saleEnd sql.NullTime
	query := `
		SELECT id, event_id, name, price, currency, total_quantity, available_quantity,
		       sold_quantity, is_active, sale_start, sale_end, created_at, updated_at
		FROM ticket_types
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Price,
		&tt.Currency,
		&tt.TotalQuantity,
		&tt.AvailableQuantity,
		&tt.SoldQuantity,
		&tt.IsActive,
		&saleStart,
		&saleEnd,
		&tt.CreatedAt,
		&tt.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ticket type %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	tt.SaleStart = timePtr(saleStart)
	tt.SaleEnd = timePtr(saleEnd)
	return tt, nil
}

func (r *TicketTypeRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ticket_types SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ticket type %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *TicketTypeRepository) Reserve(ctx context.Context, id string, qty int) error {
	return reserveStock(ctx, r.db, id, qty)
}

func (r *TicketTypeRepository) Release(ctx context.Context, id string, qty int) error {
	return releaseStock(ctx, r.db, id, qty)
}

func (r *TicketTypeRepository) Commit(ctx context.Context, id string, qty int) error {
	return commitStock(ctx, r.db, id, qty)
}

func reserveStock(ctx context.Context, cmd sqlCommand, id string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	applied, err := execConditional(ctx, cmd, reserveStockQuery, id, qty)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if !applied {
		if err := ensureTicketType(ctx, cmd, id); err != nil {
			return err
		}
		return apperrors.ErrInsufficientStock
	}
	return nil
}

func releaseStock(ctx context.Context, cmd sqlCommand, id string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	applied, err := execConditional(ctx, cmd, releaseStockQuery, id, qty)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if !applied {
		if err := ensureTicketType(ctx, cmd, id); err != nil {
			return err
		}
		return fmt.Errorf("release of %d exceeds reserved units: %w", qty, apperrors.ErrInvalidQuantity)
	}
	return nil
}

func commitStock(ctx context.Context, cmd sqlCommand, id string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	applied, err := execConditional(ctx, cmd, commitStockQuery, id, qty)
	if err != nil {
		return fmt.Errorf("failed to commit stock: %w", err)
	}
	if !applied {
		if err := ensureTicketType(ctx, cmd, id); err != nil {
			return err
		}
		return fmt.Errorf("commit of %d exceeds reserved units: %w", qty, apperrors.ErrInvalidQuantity)
	}
	return nil
}

func execConditional(ctx context.Context, cmd sqlCommand, query string, args ...interface{}) (bool, error) {
	res, err := cmd.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func ensureTicketType(ctx context.Context, cmd sqlCommand, id string) error {
	var exists bool
	err := cmd.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ticket type %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
