package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/logger"
)

// LivenessCache shares device liveness probe results across instances so a
// fleet of orchestrators does not re-probe the same reader in lockstep.
// A cache miss just means the registry probes again; errors degrade to miss.
type LivenessCache struct {
	conn *Connection
	ttl  time.Duration
	log  logger.Logger
}

// NewLivenessCache creates the cache with the given entry TTL.
func NewLivenessCache(conn *Connection, ttl time.Duration, log logger.Logger) *LivenessCache {
	if ttl <= 0 {
		ttl = constants.LivenessCacheTTL
	}
	return &LivenessCache{conn: conn, ttl: ttl, log: log.WithComponent("liveness_cache")}
}

// Get returns the cached liveness and whether an entry existed.
func (c *LivenessCache) Get(ctx context.Context, deviceID uuid.UUID) (live bool, found bool) {
	key := constants.CacheKeyDeviceLiveness + deviceID.String()
	val, err := c.conn.Client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn(ctx, "liveness cache read failed",
				logger.String("device_id", deviceID.String()),
				logger.String("error", err.Error()),
			)
		}
		return false, false
	}
	return val == "1", true
}

// Set records a probe result.
func (c *LivenessCache) Set(ctx context.Context, deviceID uuid.UUID, live bool) {
	key := constants.CacheKeyDeviceLiveness + deviceID.String()
	val := "0"
	if live {
		val = "1"
	}
	if err := c.conn.Client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.log.Warn(ctx, "liveness cache write failed",
			logger.String("device_id", deviceID.String()),
			logger.String("error", err.Error()),
		)
	}
}
