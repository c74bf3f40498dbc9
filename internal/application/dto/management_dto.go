package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/pkg/errors"
)

// CreateStudentRequest registers an enrollable student.
type CreateStudentRequest struct {
	FullName      string `json:"full_name" binding:"required"`
	DeviceUserRef uint32 `json:"device_user_ref" binding:"required"`
}

// Validate checks field presence.
func (r *CreateStudentRequest) Validate() error {
	if r.FullName == "" {
		return errors.ErrInvalidRequest("full_name is required")
	}
	if r.DeviceUserRef == 0 {
		return errors.ErrInvalidRequest("device_user_ref is required")
	}
	return nil
}

// StudentResponse is the API view of a student.
type StudentResponse struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name"`
	DeviceUserRef uint32    `json:"device_user_ref"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// StudentResponseFrom maps a student model to its API view.
func StudentResponseFrom(s *models.Student) *StudentResponse {
	return &StudentResponse{
		ID:            s.ID,
		FullName:      s.FullName,
		DeviceUserRef: s.DeviceUserRef,
		Active:        s.Active,
		CreatedAt:     s.CreatedAt,
	}
}

// StudentListResponse is a page of students.
type StudentListResponse struct {
	Students []*StudentResponse `json:"students"`
	Total    int64              `json:"total"`
}

// CreateDeviceRequest registers a fingerprint reader.
type CreateDeviceRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// Validate checks field presence.
func (r *CreateDeviceRequest) Validate() error {
	if r.Name == "" {
		return errors.ErrInvalidRequest("name is required")
	}
	return nil
}

// DeviceResponse is the API view of a device.
type DeviceResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Address    string     `json:"address,omitempty"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DeviceResponseFrom maps a device model to its API view.
func DeviceResponseFrom(d *models.Device) *DeviceResponse {
	return &DeviceResponse{
		ID:         d.ID,
		Name:       d.Name,
		Address:    d.Address,
		Status:     string(d.Status),
		LastSeenAt: d.LastSeenAt,
		CreatedAt:  d.CreatedAt,
	}
}

// SyncStudentRequest records that a student's user record was provisioned on
// a device, making the student enrollable there.
type SyncStudentRequest struct {
	StudentID uuid.UUID `json:"student_id" binding:"required"`
}

// Validate checks field presence.
func (r *SyncStudentRequest) Validate() error {
	if r.StudentID == uuid.Nil {
		return errors.ErrInvalidRequest("student_id is required")
	}
	return nil
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
