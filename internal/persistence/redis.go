package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla-engine/internal/config"
)

const redisProbeTimeout = 2 * time.Second

// Redis holds the cache client. A disabled Redis has no client and the cache
// layer falls back to an in-process store.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis builds the client. An unreachable server is logged, not fatal:
// cache calls fail soft and readiness reports the outage.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if !cfg.Enabled {
		logger.Warn("redis disabled; using in-process cache store")
		return &Redis{}
	}

	r := &Redis{client: redis.NewUniversalClient(redisOptions(cfg))}
	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}
	return r
}

// redisOptions accepts a comma separated REDIS_ADDR; more than one address
// selects a cluster client.
func redisOptions(cfg config.RedisConfig) *redis.UniversalOptions {
	var addrs []string
	for _, addr := range strings.Split(cfg.Addr, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return &redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Client returns the client, nil when Redis is disabled.
func (r *Redis) Client() redis.UniversalClient {
	if r == nil {
		return nil
	}
	return r.client
}

// Enabled reports whether a client was configured.
func (r *Redis) Enabled() bool {
	return r.Client() != nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return fmt.Errorf("redis: %w", ErrNotConfigured)
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.client.Close()
	}
}
