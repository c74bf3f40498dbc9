package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/pkg/constants"
)

// ErrTerminalState is returned when a transition is attempted on a session
// that already reached Completed, Failed or Cancelled.
var ErrTerminalState = errors.New("session is in a terminal state")

// ErrStageOrder is returned when a stage advance would move progress
// backwards or skip the fixed Ready -> Placing -> Capturing -> Complete order.
var ErrStageOrder = errors.New("stage advance out of order")

// EnrollmentSession is one attempt to enroll one finger of one student on one
// device. Sessions are retained indefinitely as enrollment history; they are
// mutated only by the orchestrator goroutine that owns them.
type EnrollmentSession struct {
	ID          uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID                 `gorm:"type:uuid;index;not null"`
	StudentID   uuid.UUID                 `gorm:"type:uuid;index;not null"`
	DeviceID    uuid.UUID                 `gorm:"type:uuid;index;not null"`
	FingerIndex int                       `gorm:"not null"`
	Status      constants.SessionStatus   `gorm:"size:32;not null"`
	Stage       constants.EnrollmentStage `gorm:"size:32"`
	Progress    int                       `gorm:"not null;default:0"`
	Message     string                    `gorm:"size:512"`
	ErrorCode   string                    `gorm:"size:64"`
	ErrorMsg    string                    `gorm:"size:512"`
	Quality     *int
	TemplateID  *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time  `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewEnrollmentSession creates a Pending session.
func NewEnrollmentSession(tenantID, studentID, deviceID uuid.UUID, fingerIndex int) *EnrollmentSession {
	return &EnrollmentSession{
		ID:          uuid.New(),
		TenantID:    tenantID,
		StudentID:   studentID,
		DeviceID:    deviceID,
		FingerIndex: fingerIndex,
		Status:      constants.SessionStatusPending,
		Progress:    0,
		Message:     "waiting for device",
		CreatedAt:   time.Now().UTC(),
	}
}

// Begin moves the session from Pending to InProgress at the Ready stage.
func (s *EnrollmentSession) Begin() error {
	if s.Status.IsTerminal() {
		return ErrTerminalState
	}
	if s.Status != constants.SessionStatusPending {
		return fmt.Errorf("cannot begin session in status %s", s.Status)
	}
	now := time.Now().UTC()
	s.Status = constants.SessionStatusInProgress
	s.Stage = constants.StageReady
	s.Progress = constants.StageReady.Progress()
	s.Message = "place finger on the sensor"
	s.StartedAt = &now
	return nil
}

// AdvanceStage moves an in-progress session to the next capture stage.
// Progress is monotonic; only Ready -> Placing -> Capturing are reachable
// here, completion goes through Complete.
func (s *EnrollmentSession) AdvanceStage(stage constants.EnrollmentStage, message string) error {
	if s.Status.IsTerminal() {
		return ErrTerminalState
	}
	if s.Status != constants.SessionStatusInProgress {
		return fmt.Errorf("cannot advance session in status %s", s.Status)
	}
	if stage.Progress() <= s.Progress {
		return ErrStageOrder
	}
	if stage == constants.StageComplete {
		return ErrStageOrder
	}
	s.Stage = stage
	s.Progress = stage.Progress()
	s.Message = message
	return nil
}

// Complete marks the session terminal with a stored template reference.
// Exactly one of template reference or error is set on a terminal session.
func (s *EnrollmentSession) Complete(templateID uuid.UUID, quality int) error {
	if s.Status.IsTerminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	s.Status = constants.SessionStatusCompleted
	s.Stage = constants.StageComplete
	s.Progress = constants.StageComplete.Progress()
	s.Message = "enrollment complete"
	s.Quality = &quality
	s.TemplateID = &templateID
	s.CompletedAt = &now
	return nil
}

// Fail marks the session terminal with an error code and message.
func (s *EnrollmentSession) Fail(code constants.ErrorCode, message string) error {
	if s.Status.IsTerminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	s.Status = constants.SessionStatusFailed
	s.Message = "enrollment failed"
	s.ErrorCode = string(code)
	s.ErrorMsg = message
	s.CompletedAt = &now
	return nil
}

// Cancel marks the session terminal as cancelled by the caller.
func (s *EnrollmentSession) Cancel() error {
	if s.Status.IsTerminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	s.Status = constants.SessionStatusCancelled
	s.Message = "enrollment cancelled"
	s.CompletedAt = &now
	return nil
}

// IsCancellable reports whether a cancel request is acceptable.
func (s *EnrollmentSession) IsCancellable() bool {
	return s.Status == constants.SessionStatusInProgress
}
