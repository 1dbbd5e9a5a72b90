// Package ledger owns the ticket stock counters. Callers never read-modify-write
// available/sold themselves; every change goes through Reserve, Release or Commit.
package ledger

import (
	"context"

	"tixledger/internal/models"
)

// Ledger is implemented by the PostgreSQL ticket type repository and by Memory.
type Ledger interface {
	// Reserve decrements available by qty if at least qty remain, in one step.
	Reserve(ctx context.Context, ticketTypeID string, qty int) error
	// Release returns qty previously reserved units to available.
	Release(ctx context.Context, ticketTypeID string, qty int) error
	// Commit moves qty reserved units to sold. Available is not touched.
	Commit(ctx context.Context, ticketTypeID string, qty int) error
	// Get returns a snapshot of the ticket type and its counters.
	Get(ctx context.Context, ticketTypeID string) (*models.TicketType, error)
}
