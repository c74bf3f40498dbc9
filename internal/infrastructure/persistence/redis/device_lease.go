package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// releaseScript deletes the lease key only if the caller still owns it, so a
// lease that expired and was re-acquired by another instance is never
// released by the old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeviceLeaseImpl is the redis-backed distributed per-device enrollment
// lease. It extends the pool's in-process exclusivity across orchestrator
// instances sharing one device fleet.
type DeviceLeaseImpl struct {
	conn *Connection
	log  logger.Logger
}

// NewDeviceLease creates the redis-backed lease.
func NewDeviceLease(conn *Connection, log logger.Logger) service.DeviceLease {
	return &DeviceLeaseImpl{conn: conn, log: log.WithComponent("device_lease")}
}

// Acquire implements service.DeviceLease via SET NX PX.
func (l *DeviceLeaseImpl) Acquire(ctx context.Context, deviceID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	key := constants.CacheKeyDeviceLease + deviceID.String()
	ok, err := l.conn.Client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, constants.ErrCodeInternal, "failed to acquire device lease")
	}
	return ok, nil
}

// Release implements service.DeviceLease. Releasing a lease held by someone
// else, or one that already expired, is a no-op.
func (l *DeviceLeaseImpl) Release(ctx context.Context, deviceID uuid.UUID, owner string) error {
	key := constants.CacheKeyDeviceLease + deviceID.String()
	if err := releaseScript.Run(ctx, l.conn.Client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to release device lease")
	}
	return nil
}
