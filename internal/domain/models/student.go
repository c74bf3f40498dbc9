package models

import (
	"time"

	"github.com/google/uuid"
)

// Student represents an enrollable person within a tenant. DeviceUserRef is
// the numeric user id the fingerprint readers know the student by; it must be
// provisioned on a device before enrollment can start there.
type Student struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;index;not null"`
	FullName      string    `gorm:"size:255;not null"`
	DeviceUserRef uint32    `gorm:"not null"`
	Active        bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewStudent creates an active student scoped to a tenant.
func NewStudent(tenantID uuid.UUID, fullName string, deviceUserRef uint32) *Student {
	return &Student{
		ID:            uuid.New(),
		TenantID:      tenantID,
		FullName:      fullName,
		DeviceUserRef: deviceUserRef,
		Active:        true,
	}
}
