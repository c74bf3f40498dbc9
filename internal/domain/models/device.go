package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/pkg/constants"
)

// Device represents a registered fingerprint reader. Address is the network
// endpoint the device link dials; it is empty for simulated devices.
type Device struct {
	ID         uuid.UUID              `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID              `gorm:"type:uuid;index;not null"`
	Name       string                 `gorm:"size:255;not null"`
	Address    string                 `gorm:"size:255"`
	Status     constants.DeviceStatus `gorm:"size:32;not null;default:active"`
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDevice creates an active device scoped to a tenant.
func NewDevice(tenantID uuid.UUID, name, address string) *Device {
	return &Device{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
		Address:  address,
		Status:   constants.DeviceStatusActive,
	}
}

// IsActive reports whether the device may accept enrollments.
func (d *Device) IsActive() bool {
	return d.Status == constants.DeviceStatusActive
}

// DeviceUser is a row of the on-device user roster mirror. The registry
// consults it before an enrollment starts; the enrollment protocol never
// auto-provisions a missing record.
type DeviceUser struct {
	DeviceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	StudentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserRef   uint32    `gorm:"not null"`
	SyncedAt  time.Time `gorm:"not null"`
}
