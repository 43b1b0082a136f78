package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/support-client/internal/config"
)

// connectTimeout bounds the first ping of an outbox backend.
const connectTimeout = 5 * time.Second

// ErrPostgresDSN is returned when the postgres outbox is selected without a DSN.
var ErrPostgresDSN = errors.New("persistence: POSTGRES_DSN is required for the postgres outbox")

// Postgres is the pool behind the durable outbox.
type Postgres struct {
	pool *pgxpool.Pool
}

// PostgresPoolConfig turns cfg into a pool configuration without connecting.
func PostgresPoolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, ErrPostgresDSN
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	return poolCfg, nil
}

// OpenPostgres connects the outbox pool and, when enabled, applies the
// outbox migrations. An unreachable server is an error: queued messages
// must not silently go nowhere.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := PostgresPoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.RunMigrations {
		if err := RunMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate outbox: %w", err)
		}
	}
	logger.Info("postgres outbox ready", zap.Int32("max_conns", poolCfg.MaxConns))
	return p, nil
}

// Pool returns the pgx pool for the outbox repository.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping checks the server within connectTimeout.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases the pool. It satisfies the client's closer list.
func (p *Postgres) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}
