package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// DeviceRepoImpl implements DeviceRepository on gorm.
type DeviceRepoImpl struct {
	db  *gorm.DB
	log logger.Logger
}

// NewDeviceRepository creates the gorm-backed device repository.
func NewDeviceRepository(db *gorm.DB, log logger.Logger) repository.DeviceRepository {
	return &DeviceRepoImpl{db: db, log: log.WithComponent("device_repo")}
}

// Create registers a new device.
func (r *DeviceRepoImpl) Create(ctx context.Context, device *models.Device) error {
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		r.log.Error(ctx, "failed to create device", err,
			logger.String("device_id", device.ID.String()),
		)
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to create device")
	}
	return nil
}

// FindByID retrieves a device by id.
func (r *DeviceRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&device).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("device", id.String())
		}
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to retrieve device")
	}
	return &device, nil
}

// ListByTenant returns the tenant's devices.
func (r *DeviceRepoImpl) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Device, error) {
	var devices []*models.Device
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at").
		Find(&devices).Error
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to list devices")
	}
	return devices, nil
}

// UpdateLastSeen records the most recent successful contact.
func (r *DeviceRepoImpl) UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to update last seen")
	}
	return nil
}

// HasStudent reports whether the student's user record is provisioned on the device.
func (r *DeviceRepoImpl) HasStudent(ctx context.Context, deviceID, studentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeviceUser{}).
		Where("device_id = ? AND student_id = ?", deviceID, studentID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, constants.ErrCodeInternal, "failed to check device roster")
	}
	return count > 0, nil
}

// AddStudent records a provisioned user roster entry.
func (r *DeviceRepoImpl) AddStudent(ctx context.Context, entry *models.DeviceUser) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to add roster entry")
	}
	return nil
}
