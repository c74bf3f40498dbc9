// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
)

// StartEnrollmentRequest asks for a new enrollment session.
type StartEnrollmentRequest struct {
	StudentID   uuid.UUID `json:"student_id" binding:"required"`
	DeviceID    uuid.UUID `json:"device_id" binding:"required"`
	FingerIndex int       `json:"finger_index"`
}

// Validate checks field ranges.
func (r *StartEnrollmentRequest) Validate() error {
	if r.StudentID == uuid.Nil {
		return errors.ErrInvalidRequest("student_id is required")
	}
	if r.DeviceID == uuid.Nil {
		return errors.ErrInvalidRequest("device_id is required")
	}
	if r.FingerIndex < constants.FingerIndexMin || r.FingerIndex > constants.FingerIndexMax {
		return errors.ErrInvalidRequest("finger_index must be between 0 and 9")
	}
	return nil
}

// SessionResponse is the API view of an enrollment session.
type SessionResponse struct {
	ID          uuid.UUID  `json:"id"`
	StudentID   uuid.UUID  `json:"student_id"`
	DeviceID    uuid.UUID  `json:"device_id"`
	FingerIndex int        `json:"finger_index"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage,omitempty"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	ErrorCode   string     `json:"error_code,omitempty"`
	ErrorMsg    string     `json:"error_message,omitempty"`
	Quality     *int       `json:"quality,omitempty"`
	TemplateID  *uuid.UUID `json:"template_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SessionResponseFrom maps a session model to its API view.
func SessionResponseFrom(s *models.EnrollmentSession) *SessionResponse {
	return &SessionResponse{
		ID:          s.ID,
		StudentID:   s.StudentID,
		DeviceID:    s.DeviceID,
		FingerIndex: s.FingerIndex,
		Status:      string(s.Status),
		Stage:       string(s.Stage),
		Progress:    s.Progress,
		Message:     s.Message,
		ErrorCode:   s.ErrorCode,
		ErrorMsg:    s.ErrorMsg,
		Quality:     s.Quality,
		TemplateID:  s.TemplateID,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

// ListSessionsQuery narrows a session listing.
type ListSessionsQuery struct {
	StudentID *uuid.UUID
	DeviceID  *uuid.UUID
	Limit     int
	Offset    int
}

// SessionListResponse is a page of sessions.
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int64              `json:"total"`
}
