package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.True(t, cfg.NATSEnabled)
	assert.False(t, cfg.ValkeyEnabled)
	assert.False(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.PurchaseTTL)
	assert.Equal(t, "payment-reconciliations", cfg.Elasticsearch.Index)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", StorageMemory)
	t.Setenv("NATS_ENABLED", "false")
	t.Setenv("PLATFORM_FEE", "250")
	t.Setenv("BLOCKCHAIN_FEE", "10")
	t.Setenv("PURCHASE_TTL_MIN", "5")
	t.Setenv("ELASTICSEARCH_ENABLED", "true")
	t.Setenv("ELASTICSEARCH_TIMEOUT", "3s")
	t.Setenv("DB_PORT", "not-a-number")

	cfg := Load()

	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.False(t, cfg.NATSEnabled)
	assert.Equal(t, int64(250), cfg.Fees.Platform)
	assert.Equal(t, int64(10), cfg.Fees.Blockchain)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.PurchaseTTL)
	assert.True(t, cfg.Elasticsearch.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Elasticsearch.Timeout)
	assert.Equal(t, 5432, cfg.Database.Port)
}
