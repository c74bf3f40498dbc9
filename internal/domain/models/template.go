package models

import (
	"time"

	"github.com/google/uuid"
)

// FingerprintTemplate is the durable biometric artifact produced by a
// successful capture. It is decoupled from the session that produced it so it
// survives device loss and can be pushed to a replacement device. Payload
// bytes are always stored encrypted; KeyID records the encryption key version
// so rotation never orphans old ciphertext silently.
type FingerprintTemplate struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;index;not null"`
	StudentID   uuid.UUID `gorm:"type:uuid;index:idx_tpl_owner;not null"`
	DeviceID    uuid.UUID `gorm:"type:uuid;index:idx_tpl_owner;not null"`
	FingerIndex int       `gorm:"index:idx_tpl_owner;not null"`
	Ciphertext  []byte    `gorm:"not null"`
	KeyID       string    `gorm:"size:64;not null"`
	Quality     int       `gorm:"not null"`
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

// NewFingerprintTemplate creates an active template record.
func NewFingerprintTemplate(tenantID, studentID, deviceID uuid.UUID, fingerIndex int, ciphertext []byte, keyID string, quality int) *FingerprintTemplate {
	return &FingerprintTemplate{
		ID:          uuid.New(),
		TenantID:    tenantID,
		StudentID:   studentID,
		DeviceID:    deviceID,
		FingerIndex: fingerIndex,
		Ciphertext:  ciphertext,
		KeyID:       keyID,
		Quality:     quality,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
}

// Retire marks the template logically deleted. Ciphertext is never purged.
func (t *FingerprintTemplate) Retire() {
	t.Active = false
}
