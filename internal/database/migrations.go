package database

import (
	"fmt"

	"tixledger/internal/logger"
)

func (db *DB) RunMigrations() error {
	logger.Get().Info("Running database migrations...")

	migrations := []string{
		createTicketTypesTable,
		createPurchasesTable,
		createPaymentsTable,
		createNFTTicketsTable,
		createPaymentsPendingIndex,
		createPurchasesBuyerIndex,
	}

	for i, migration := range migrations {
		logger.Get().Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Get().Info("All migrations completed successfully")
	return nil
}

// available + sold never exceeds total; the difference is what pending purchases hold.
const createTicketTypesTable = `
CREATE TABLE IF NOT EXISTS ticket_types (
    id VARCHAR(64) PRIMARY KEY,
    event_id VARCHAR(64) NOT NULL,
    name VARCHAR(255) NOT NULL,
    price BIGINT NOT NULL CHECK (price >= 0),
    currency VARCHAR(16) NOT NULL,
    total_quantity INTEGER NOT NULL CHECK (total_quantity >= 0),
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0),
    sold_quantity INTEGER NOT NULL DEFAULT 0 CHECK (sold_quantity >= 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    sale_start TIMESTAMP,
    sale_end TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
    CONSTRAINT ticket_types_stock_check CHECK (available_quantity + sold_quantity <= total_quantity)
);`

const createPurchasesTable = `
CREATE TABLE IF NOT EXISTS purchases (
    id VARCHAR(64) PRIMARY KEY,
    buyer_id VARCHAR(255) NOT NULL,
    event_id VARCHAR(64) NOT NULL,
    ticket_type_id VARCHAR(64) NOT NULL REFERENCES ticket_types(id),
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
    currency VARCHAR(16) NOT NULL,
    payment_status VARCHAR(20) NOT NULL DEFAULT 'pending'
        CHECK (payment_status IN ('pending', 'completed', 'failed', 'refunded')),
    transaction_hash VARCHAR(255),
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(64) PRIMARY KEY,
    purchase_id VARCHAR(64) UNIQUE REFERENCES purchases(id),
    user_id VARCHAR(255) NOT NULL,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    currency VARCHAR(16) NOT NULL,
    memo VARCHAR(255) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING', 'APPROVED', 'COMPLETED', 'CANCELLED', 'FAILED')),
    external_payment_id VARCHAR(255) UNIQUE,
    transaction_hash VARCHAR(255),
    completed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createNFTTicketsTable = `
CREATE TABLE IF NOT EXISTS nft_tickets (
    id VARCHAR(64) PRIMARY KEY,
    purchase_id VARCHAR(64) NOT NULL UNIQUE REFERENCES purchases(id),
    token_id VARCHAR(255) NOT NULL UNIQUE,
    is_used BOOLEAN NOT NULL DEFAULT FALSE,
    used_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);`

const createPaymentsPendingIndex = `
CREATE INDEX IF NOT EXISTS idx_payments_pending_created ON payments(created_at) WHERE status = 'PENDING';`

const createPurchasesBuyerIndex = `
CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchases(buyer_id);`
