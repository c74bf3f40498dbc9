package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/pkg/constants"
)

// ProgressEventType distinguishes live progress updates from the terminal
// completion/error event of a session.
type ProgressEventType string

const (
	// EventTypeProgress is a non-terminal stage update.
	EventTypeProgress ProgressEventType = "progress"
	// EventTypeCompleted carries the terminal success outcome.
	EventTypeCompleted ProgressEventType = "completed"
	// EventTypeFailed carries the terminal failure outcome.
	EventTypeFailed ProgressEventType = "failed"
	// EventTypeCancelled carries the terminal cancellation outcome.
	EventTypeCancelled ProgressEventType = "cancelled"
)

// ProgressEvent is the live lifecycle event fanned out to subscribers. It is
// never buffered for later subscribers; history lives on the session record.
type ProgressEvent struct {
	Type         ProgressEventType       `json:"type"`
	SessionID    uuid.UUID               `json:"session_id"`
	TenantID     uuid.UUID               `json:"tenant_id"`
	StudentID    uuid.UUID               `json:"student_id"`
	DeviceID     uuid.UUID               `json:"device_id"`
	Progress     int                     `json:"progress"`
	Status       constants.SessionStatus `json:"status"`
	Message      string                  `json:"message"`
	ErrorCode    string                  `json:"error_code,omitempty"`
	Quality      *int                    `json:"quality,omitempty"`
	TimestampUTC time.Time               `json:"timestamp_utc"`
}

// EventFromSession builds the broadcast event for the session's current state.
func EventFromSession(s *EnrollmentSession) ProgressEvent {
	ev := ProgressEvent{
		Type:         EventTypeProgress,
		SessionID:    s.ID,
		TenantID:     s.TenantID,
		StudentID:    s.StudentID,
		DeviceID:     s.DeviceID,
		Progress:     s.Progress,
		Status:       s.Status,
		Message:      s.Message,
		ErrorCode:    s.ErrorCode,
		Quality:      s.Quality,
		TimestampUTC: time.Now().UTC(),
	}
	switch s.Status {
	case constants.SessionStatusCompleted:
		ev.Type = EventTypeCompleted
	case constants.SessionStatusFailed:
		ev.Type = EventTypeFailed
	case constants.SessionStatusCancelled:
		ev.Type = EventTypeCancelled
	}
	return ev
}
