package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int32
	ttl   atomic.Int64
	err   error
}

func (c *countingExpirer) ExpireStale(ctx context.Context, ttl time.Duration) (int, error) {
	c.calls.Add(1)
	c.ttl.Store(int64(ttl))
	return 2, c.err
}

type countingReissuer struct {
	calls atomic.Int32
	limit atomic.Int32
}

func (c *countingReissuer) ReissueMissing(ctx context.Context, limit int) (int, error) {
	c.calls.Add(1)
	c.limit.Store(int32(limit))
	return 0, nil
}

type countingPool struct {
	calls atomic.Int32
}

func (c *countingPool) ValidateConnectionPool() {
	c.calls.Add(1)
}

func TestPurchaseExpirationJob_SweepsOnStartAndTick(t *testing.T) {
	expirer := &countingExpirer{}
	reissuer := &countingReissuer{}
	pool := &countingPool{}

	job := NewPurchaseExpirationJob(expirer, reissuer, pool, 15*time.Minute, 10*time.Millisecond, 50)
	job.Start(context.Background())

	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	job.Stop()

	assert.Equal(t, int64(15*time.Minute), expirer.ttl.Load())
	assert.Equal(t, int32(50), reissuer.limit.Load())
	assert.GreaterOrEqual(t, pool.calls.Load(), int32(2))
}

func TestPurchaseExpirationJob_ContinuesAfterExpireError(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db down")}
	reissuer := &countingReissuer{}

	job := NewPurchaseExpirationJob(expirer, reissuer, nil, time.Minute, time.Hour, 10)
	job.sweep(context.Background())

	assert.Equal(t, int32(1), expirer.calls.Load())
	assert.Equal(t, int32(1), reissuer.calls.Load())
}
