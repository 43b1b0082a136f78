package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/config"
)

// DefaultOutboxPrefix namespaces outbox keys when none is configured.
const DefaultOutboxPrefix = "support:outbox"

// Redis is the client behind the redis outbox.
type Redis struct {
	Client *redis.Client
	// Prefix namespaces every outbox key.
	Prefix string
}

// OutboxPrefix normalizes a configured key prefix: surrounding spaces and a
// trailing ':' are dropped, empty falls back to DefaultOutboxPrefix.
func OutboxPrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return DefaultOutboxPrefix
	}
	return prefix
}

// OpenRedis connects to Redis for the outbox. Unlike a cache, the outbox is
// useless without its store, so an unreachable server is an error.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, prefix string, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	r := &Redis{Client: client, Prefix: OutboxPrefix(prefix)}
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Info("redis outbox ready", zap.String("addr", cfg.Addr), zap.String("prefix", r.Prefix))
	return r, nil
}

// Ping checks the server within connectTimeout.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
