package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/config"
)

// NewRedisClient connects to cfg.RedisURL and verifies connectivity. The
// client backs the idempotency cache only; the ledger never reads from it.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = cfg.AppName
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
