package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
)

// DeviceRepository persists registered fingerprint readers and their
// on-device user roster mirror.
type DeviceRepository interface {
	// Create registers a new device.
	Create(ctx context.Context, device *models.Device) error

	// FindByID retrieves a device by id.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Device, error)

	// ListByTenant returns the tenant's devices.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Device, error)

	// UpdateLastSeen records the most recent successful contact.
	UpdateLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error

	// HasStudent reports whether the student's user record is provisioned
	// on the device. The enrollment protocol fails fast when it is not.
	HasStudent(ctx context.Context, deviceID, studentID uuid.UUID) (bool, error)

	// AddStudent records a provisioned user roster entry.
	AddStudent(ctx context.Context, entry *models.DeviceUser) error
}
