package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/whatsapp-tour-booking/internal/company"
	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/events"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// Infra holds the shared connections both binaries need.
type Infra struct {
	Pool      *pgxpool.Pool
	SQL       *sql.DB
	Redis     *redis.Client
	Companies *company.Directory
}

// Close releases every connection. Safe on a partially built Infra.
func (i *Infra) Close() {
	if i == nil {
		return
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.SQL != nil {
		_ = i.SQL.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// BuildInfra connects to Postgres (required) and Redis (optional).
func BuildInfra(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Infra, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}

	infra := &Infra{
		Pool:  pool,
		SQL:   stdlib.OpenDBFromPool(pool),
		Redis: BuildRedisClient(ctx, cfg, logger, true),
	}
	if infra.Redis == nil {
		logger.Warn("redis unavailable; using in-process locks, dedupe and no company cache")
	}
	infra.Companies = company.NewDirectory(company.NewRepository(pool), infra.Redis, cfg.CompanyCacheTTL, logger)
	return infra, nil
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLocker serializes turns per guest across processes when Redis is present.
func BuildLocker(redisClient *redis.Client, cfg *appconfig.Config) conversation.Locker {
	if redisClient == nil || cfg == nil {
		return conversation.NewLocalLocker()
	}
	return conversation.NewRedisLocker(redisClient, cfg.SessionLockTTL, cfg.SessionLockTTL)
}

// BuildDeduper drops webhook redeliveries by provider message id.
func BuildDeduper(redisClient *redis.Client, cfg *appconfig.Config) events.Deduper {
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.MessageDedupeTTL
	}
	if redisClient == nil {
		return events.NewMemoryDeduper(ttl)
	}
	return events.NewRedisDeduper(redisClient, ttl)
}
