package jobs

import (
	"context"
	"sync"
	"time"

	"tixledger/internal/logger"
)

// PurchaseExpirer is satisfied by *service.PurchaseService
type PurchaseExpirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration) (int, error)
}

// TicketReissuer is satisfied by *service.TicketService
type TicketReissuer interface {
	ReissueMissing(ctx context.Context, limit int) (int, error)
}

// PoolValidator is satisfied by *database.DB
type PoolValidator interface {
	ValidateConnectionPool()
}

// PurchaseExpirationJob releases stock held by purchases that stayed pending past
// the TTL and issues tickets that were lost after completion.
type PurchaseExpirationJob struct {
	purchases    PurchaseExpirer
	tickets      TicketReissuer
	pool         PoolValidator
	ttl          time.Duration
	interval     time.Duration
	reissueBatch int

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPurchaseExpirationJob creates a new sweep job. pool may be nil.
func NewPurchaseExpirationJob(purchases PurchaseExpirer, tickets TicketReissuer, pool PoolValidator, ttl, interval time.Duration, reissueBatch int) *PurchaseExpirationJob {
	return &PurchaseExpirationJob{
		purchases:    purchases,
		tickets:      tickets,
		pool:         pool,
		ttl:          ttl,
		interval:     interval,
		reissueBatch: reissueBatch,
		done:         make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop
func (j *PurchaseExpirationJob) Start(ctx context.Context) {
	logger.Get().Info("Starting purchase expiration job", "check_interval", j.interval, "timeout", j.ttl)

	j.ticker = time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.sweep(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.sweep(ctx)
			case <-j.done:
				logger.Get().Info("Purchase expiration job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the background job and waits for a running sweep
func (j *PurchaseExpirationJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
	j.wg.Wait()
}

func (j *PurchaseExpirationJob) sweep(ctx context.Context) {
	log := logger.Get()

	expired, err := j.purchases.ExpireStale(ctx, j.ttl)
	if err != nil {
		log.Error("Failed to expire stale purchases", "error", err)
	} else if expired > 0 {
		log.Info("Expired stale purchases", "count", expired)
	}

	reissued, err := j.tickets.ReissueMissing(ctx, j.reissueBatch)
	if err != nil {
		log.Error("Failed to reissue missing tickets", "error", err)
	} else if reissued > 0 {
		log.Info("Reissued missing tickets", "count", reissued)
	}

	if j.pool != nil {
		j.pool.ValidateConnectionPool()
	}
}
