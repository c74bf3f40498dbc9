package dto

import (
	"github.com/google/uuid"

	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
)

// BulkItem names one student/finger pair within a bulk enrollment run.
type BulkItem struct {
	StudentID   uuid.UUID `json:"student_id" binding:"required"`
	FingerIndex int       `json:"finger_index"`
}

// BulkEnrollmentRequest runs sequential enrollments on one device.
type BulkEnrollmentRequest struct {
	DeviceID uuid.UUID  `json:"device_id" binding:"required"`
	Items    []BulkItem `json:"items" binding:"required"`
}

// MaxBulkItems bounds a single bulk run; enrollments are sequential and each
// can take the full stage timeouts.
const MaxBulkItems = 50

// Validate checks field ranges.
func (r *BulkEnrollmentRequest) Validate() error {
	if r.DeviceID == uuid.Nil {
		return errors.ErrInvalidRequest("device_id is required")
	}
	if len(r.Items) == 0 {
		return errors.ErrInvalidRequest("items must not be empty")
	}
	if len(r.Items) > MaxBulkItems {
		return errors.ErrInvalidRequest("too many items in one bulk run")
	}
	for _, item := range r.Items {
		if item.StudentID == uuid.Nil {
			return errors.ErrInvalidRequest("student_id is required for every item")
		}
		if item.FingerIndex < constants.FingerIndexMin || item.FingerIndex > constants.FingerIndexMax {
			return errors.ErrInvalidRequest("finger_index must be between 0 and 9")
		}
	}
	return nil
}

// BulkItemResult is the outcome of one item within a bulk run.
type BulkItemResult struct {
	StudentID   uuid.UUID `json:"student_id"`
	FingerIndex int       `json:"finger_index"`
	SessionID   uuid.UUID `json:"session_id"`
	Status      string    `json:"status"`
	ErrorCode   string    `json:"error_code,omitempty"`
	ErrorMsg    string    `json:"error_message,omitempty"`
}

// BulkEnrollmentResponse summarises a bulk run. One item's failure never
// aborts the rest, so Succeeded+Failed always equals Total.
type BulkEnrollmentResponse struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []BulkItemResult `json:"results"`
}
