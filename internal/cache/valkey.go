package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tixledger/internal/models"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// ValkeyClient caches purchase statuses that can no longer change
type ValkeyClient struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewValkeyClient(cfg Config) (*ValkeyClient, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "purchase:status:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	return &ValkeyClient{
		client:    rdb,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// GetPurchaseStatus returns nil, nil on a cache miss.
func (v *ValkeyClient) GetPurchaseStatus(ctx context.Context, purchaseID string) (*models.PurchaseStatusResponse, error) {
	raw, err := v.client.Get(ctx, v.keyPrefix+purchaseID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup error: %w", err)
	}

	var status models.PurchaseStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("invalid purchase status in cache: %w", err)
	}
	return &status, nil
}

func (v *ValkeyClient) SetPurchaseStatus(ctx context.Context, status *models.PurchaseStatusResponse) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase status: %w", err)
	}
	if err := v.client.Set(ctx, v.keyPrefix+status.PurchaseID, raw, v.ttl).Err(); err != nil {
		return fmt.Errorf("cache write error: %w", err)
	}
	return nil
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
