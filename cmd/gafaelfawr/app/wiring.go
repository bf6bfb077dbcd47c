package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	tcache "github.com/gafaelfawr/gafaelfawr/pkg/cache"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/history"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/kv"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

// deps bundles the storage and service layer every long-running command
// needs, built once from a loaded Config.
type deps struct {
	cfg   *gfconfig.Config
	pool  *pgxpool.Pool
	redis *redis.Client
	kv    *kv.Store
	svc   *tokenservice.Service
}

func loadConfig(path string) (*gfconfig.Config, error) {
	cfg, err := gfconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return cfg, nil
}

// buildDeps connects to Redis and PostgreSQL and assembles a Service.
// Callers own the returned *pgxpool.Pool and *redis.Client and must close
// them.
func buildDeps(ctx context.Context, cfg *gfconfig.Config) (*deps, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parsing redis_url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	kvStore := kv.New(redisClient, "")
	relStore := db.New(pool)
	historyLog := history.New(pool)

	cacheSize := cfg.TokenCacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	tokenCache, err := tcache.New(cacheSize)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building token cache: %w", err)
	}

	svc := tokenservice.New(kvStore, relStore, historyLog, tokenCache, cfg)

	return &deps{cfg: cfg, pool: pool, redis: redisClient, kv: kvStore, svc: svc}, nil
}

func (d *deps) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}
