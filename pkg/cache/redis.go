package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/corp-reports/pkg/config"
)

// Bounds for the optional account cache. A dead Redis falls through to the
// report server within a couple of seconds.
const (
	dialTimeout = 2 * time.Second
	ioTimeout   = 500 * time.Millisecond
	pingTimeout = 2 * time.Second
)

// NewRedis connects to the reference-data cache and pings it once. On
// failure the client is closed and the error names the address tried.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		MaxRetries:   1,
		PoolSize:     2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	logger.Debug("reference cache connected",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.Duration("ping", time.Since(start)),
	)

	return client, nil
}
