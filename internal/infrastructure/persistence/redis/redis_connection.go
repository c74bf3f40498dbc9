// Package redis implements the redis-backed coordination pieces: the device
// liveness cache and the distributed per-device enrollment lease.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// Connection wraps the redis client.
type Connection struct {
	Client *redis.Client
}

// Connect opens and pings the redis server.
func Connect(cfg *config.RedisConfig, log logger.Logger) (*Connection, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to connect to redis")
	}

	log.Info(context.Background(), "redis connected",
		logger.String("address", cfg.Address),
	)
	return &Connection{Client: client}, nil
}

// Close releases the client.
func (c *Connection) Close() error {
	return c.Client.Close()
}
