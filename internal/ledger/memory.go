package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "tixledger/internal/errors"
	"tixledger/internal/models"
)

// counters packs available (high 32 bits) and sold (low 32 bits) so both are read
// and swapped as one consistent value.
type counters uint64

func pack(available, sold int) counters {
	return counters(uint64(uint32(available))<<32 | uint64(uint32(sold)))
}

func (c counters) available() int { return int(uint32(uint64(c) >> 32)) }
func (c counters) sold() int      { return int(uint32(uint64(c))) }

type entry struct {
	meta   models.TicketType
	active atomic.Bool
	state  atomic.Uint64
}

// Memory is a lock-free ledger. The map lock only guards registration; reserve,
// release and commit are compare-and-swap loops on a per-ticket-type word, so
// different ticket types never contend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

// Put registers or replaces a ticket type with its current counters.
func (m *Memory) Put(tt models.TicketType) {
	e := &entry{meta: tt}
	e.active.Store(tt.IsActive)
	e.state.Store(uint64(pack(tt.AvailableQuantity, tt.SoldQuantity)))

	m.mu.Lock()
	m.entries[tt.ID] = e
	m.mu.Unlock()
}

// Deactivate marks a ticket type as no longer on sale. Counters are kept.
func (m *Memory) Deactivate(ticketTypeID string) error {
	e, err := m.lookup(ticketTypeID)
	if err != nil {
		return err
	}
	e.active.Store(false)
	return nil
}

func (m *Memory) lookup(ticketTypeID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[ticketTypeID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ticket type %s: %w", ticketTypeID, apperrors.ErrNotFound)
	}
	return e, nil
}

// update retries fn against the latest counters until the swap succeeds or fn refuses.
func (e *entry) update(fn func(c counters) (counters, error)) error {
	for {
		old := e.state.Load()
		next, err := fn(counters(old))
		if err != nil {
			return err
		}
		if e.state.CompareAndSwap(old, uint64(next)) {
			return nil
		}
	}
}

func (m *Memory) Reserve(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	e, err := m.lookup(ticketTypeID)
	if err != nil {
		return err
	}
	return e.update(func(c counters) (counters, error) {
		if c.available() < qty {
			return c, apperrors.ErrInsufficientStock
		}
		return pack(c.available()-qty, c.sold()), nil
	})
}

func (m *Memory) Release(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	e, err := m.lookup(ticketTypeID)
	if err != nil {
		return err
	}
	total := e.meta.TotalQuantity
	return e.update(func(c counters) (counters, error) {
		if c.available()+c.sold()+qty > total {
			return c, fmt.Errorf("release of %d exceeds reserved units: %w", qty, apperrors.ErrInvalidQuantity)
		}
		return pack(c.available()+qty, c.sold()), nil
	})
}

func (m *Memory) Commit(ctx context.Context, ticketTypeID string, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}
	e, err := m.lookup(ticketTypeID)
	if err != nil {
		return err
	}
	total := e.meta.TotalQuantity
	return e.update(func(c counters) (counters, error) {
		if c.available()+c.sold()+qty > total {
			return c, fmt.Errorf("commit of %d exceeds reserved units: %w", qty, apperrors.ErrInvalidQuantity)
		}
		return pack(c.available(), c.sold()+qty), nil
	})
}

func (m *Memory) Get(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	e, err := m.lookup(ticketTypeID)
	if err != nil {
		return nil, err
	}
	c := counters(e.state.Load())
	tt := e.meta
	tt.AvailableQuantity = c.available()
	tt.SoldQuantity = c.sold()
	tt.IsActive = e.active.Load()
	tt.UpdatedAt = time.Now()
	return &tt, nil
}
