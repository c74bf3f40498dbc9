// Package registry implements the device registry: it resolves logical
// device ids to endpoints and liveness, and answers on-device roster
// questions ahead of an enrollment attempt.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/logger"
)

// LivenessCache is the optional shared cache of probe results. Nil disables
// caching; every Resolve then falls through to the registry record.
type LivenessCache interface {
	Get(ctx context.Context, deviceID uuid.UUID) (live bool, found bool)
	Set(ctx context.Context, deviceID uuid.UUID, live bool)
}

// DeviceRegistryImpl answers device resolution from the device repository,
// with an optional redis-backed liveness cache layered on top. A device
// counts as live when it is active and not silent past the liveness window;
// actual reachability is still proven by the link handshake.
type DeviceRegistryImpl struct {
	devices        repository.DeviceRepository
	students       repository.StudentRepository
	cache          LivenessCache
	livenessWindow time.Duration
	log            logger.Logger
}

// NewDeviceRegistry creates the registry. cache may be nil.
func NewDeviceRegistry(
	devices repository.DeviceRepository,
	students repository.StudentRepository,
	cache LivenessCache,
	livenessWindow time.Duration,
	log logger.Logger,
) service.DeviceRegistry {
	return &DeviceRegistryImpl{
		devices:        devices,
		students:       students,
		cache:          cache,
		livenessWindow: livenessWindow,
		log:            log.WithComponent("device_registry"),
	}
}

// Resolve implements service.DeviceRegistry.
func (r *DeviceRegistryImpl) Resolve(ctx context.Context, deviceID uuid.UUID) (*service.ResolvedDevice, error) {
	device, err := r.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	resolved := &service.ResolvedDevice{
		DeviceID: device.ID,
		TenantID: device.TenantID,
		Address:  device.Address,
	}

	if !device.IsActive() {
		return resolved, nil
	}
	if r.cache != nil {
		if live, found := r.cache.Get(ctx, deviceID); found {
			resolved.IsLive = live
			return resolved, nil
		}
	}
	resolved.IsLive = r.recentlySeen(device.LastSeenAt)
	return resolved, nil
}

// recentlySeen treats a never-contacted device as live so the first
// enrollment attempt reaches the handshake instead of failing on a record
// that simply has no history yet.
func (r *DeviceRegistryImpl) recentlySeen(lastSeen *time.Time) bool {
	if r.livenessWindow <= 0 || lastSeen == nil {
		return true
	}
	return time.Since(*lastSeen) <= r.livenessWindow
}

// HasStudent implements service.DeviceRegistry against the roster mirror.
func (r *DeviceRegistryImpl) HasStudent(ctx context.Context, deviceID, studentID uuid.UUID) (bool, error) {
	return r.devices.HasStudent(ctx, deviceID, studentID)
}

// UserRef implements service.DeviceRegistry.
func (r *DeviceRegistryImpl) UserRef(ctx context.Context, studentID uuid.UUID) (uint32, error) {
	student, err := r.students.FindByID(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return student.DeviceUserRef, nil
}

// MarkSeen implements service.DeviceRegistry. Failures are logged and
// swallowed; a stale last-seen timestamp never fails an enrollment.
func (r *DeviceRegistryImpl) MarkSeen(ctx context.Context, deviceID uuid.UUID) {
	now := time.Now()
	if err := r.devices.UpdateLastSeen(ctx, deviceID, now); err != nil {
		r.log.Warn(ctx, "failed to record device contact",
			logger.String("device_id", deviceID.String()),
			logger.String("error", err.Error()),
		)
	}
	if r.cache != nil {
		r.cache.Set(ctx, deviceID, true)
	}
}
