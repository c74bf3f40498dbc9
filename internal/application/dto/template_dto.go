package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/pkg/errors"
)

// TemplateResponse is the metadata view of a stored template. Ciphertext is
// never exposed through the API.
type TemplateResponse struct {
	ID          uuid.UUID `json:"id"`
	StudentID   uuid.UUID `json:"student_id"`
	DeviceID    uuid.UUID `json:"device_id"`
	FingerIndex int       `json:"finger_index"`
	KeyID       string    `json:"key_id"`
	Quality     int       `json:"quality"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// TemplateResponseFrom maps a template model to its metadata view.
func TemplateResponseFrom(t *models.FingerprintTemplate) *TemplateResponse {
	return &TemplateResponse{
		ID:          t.ID,
		StudentID:   t.StudentID,
		DeviceID:    t.DeviceID,
		FingerIndex: t.FingerIndex,
		KeyID:       t.KeyID,
		Quality:     t.Quality,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
	}
}

// TemplateListResponse is a page of template metadata.
type TemplateListResponse struct {
	Templates []*TemplateResponse `json:"templates"`
	Total     int64               `json:"total"`
}

// TransferTemplateRequest pushes a stored template to a replacement device.
type TransferTemplateRequest struct {
	TargetDeviceID uuid.UUID `json:"target_device_id" binding:"required"`
}

// Validate checks field presence.
func (r *TransferTemplateRequest) Validate() error {
	if r.TargetDeviceID == uuid.Nil {
		return errors.ErrInvalidRequest("target_device_id is required")
	}
	return nil
}
