// Package constants defines system-wide constants for the enrollment service.
package constants

import "time"

// ================================================================================
// Session Status Constants
// ================================================================================

// SessionStatus represents the lifecycle status of an enrollment session.
type SessionStatus string

const (
	// SessionStatusPending indicates the session is created but the device has not been acquired yet.
	SessionStatusPending SessionStatus = "pending"

	// SessionStatusInProgress indicates the device is acquired and capture is underway.
	SessionStatusInProgress SessionStatus = "in_progress"

	// SessionStatusCompleted indicates the capture finished and the template was stored.
	SessionStatusCompleted SessionStatus = "completed"

	// SessionStatusFailed indicates the session ended with an error.
	SessionStatusFailed SessionStatus = "failed"

	// SessionStatusCancelled indicates the session was cancelled by the caller.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// ================================================================================
// Enrollment Stage Constants
// ================================================================================

// EnrollmentStage represents the capture phase within an in-progress session.
// Each stage maps to a fixed progress percentage; progress within a session is
// strictly non-decreasing.
type EnrollmentStage string

const (
	// StageReady indicates the device accepted the start command and is waiting for a finger.
	StageReady EnrollmentStage = "ready"

	// StagePlacing indicates the device detected a finger on the sensor.
	StagePlacing EnrollmentStage = "placing"

	// StageCapturing indicates the device is sampling the held finger.
	StageCapturing EnrollmentStage = "capturing"

	// StageComplete indicates the device produced a template.
	StageComplete EnrollmentStage = "complete"
)

// Progress returns the fixed progress percentage for the stage.
func (s EnrollmentStage) Progress() int {
	switch s {
	case StageReady:
		return 0
	case StagePlacing:
		return 33
	case StageCapturing:
		return 66
	case StageComplete:
		return 100
	}
	return 0
}

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode identifies a failure class in the enrollment error taxonomy.
type ErrorCode string

const (
	// Connectivity errors.
	ErrCodeDeviceOffline  ErrorCode = "device_offline"
	ErrCodeConnectionLost ErrorCode = "connection_lost"
	ErrCodeUnreachable    ErrorCode = "unreachable"
	ErrCodeAuthRejected   ErrorCode = "auth_rejected"

	// Contention errors.
	ErrCodeDeviceBusy ErrorCode = "device_busy"

	// Protocol and capture errors.
	ErrCodePoorQuality          ErrorCode = "poor_quality"
	ErrCodeTimeout              ErrorCode = "timeout"
	ErrCodeTemplateCaptureError ErrorCode = "template_capture_error"

	// Precondition errors.
	ErrCodeStudentNotOnDevice ErrorCode = "student_not_on_device"
	ErrCodeNotCancellable     ErrorCode = "not_cancellable"

	// Data errors.
	ErrCodeTemplateUnreadable ErrorCode = "template_unreadable"

	// Generic errors.
	ErrCodeInternal       ErrorCode = "internal_error"
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	ErrCodeUnauthorized   ErrorCode = "unauthorized"
	ErrCodeForbidden      ErrorCode = "forbidden"
	ErrCodeNotFound       ErrorCode = "not_found"
)

// ================================================================================
// Device Status Constants
// ================================================================================

// DeviceStatus represents the registry status of a fingerprint reader.
type DeviceStatus string

const (
	// DeviceStatusActive indicates the device is registered and expected to be reachable.
	DeviceStatusActive DeviceStatus = "active"

	// DeviceStatusRetired indicates the device was decommissioned; templates may still reference it.
	DeviceStatusRetired DeviceStatus = "retired"
)

// ================================================================================
// Timeout and Interval Constants
// ================================================================================

const (
	// DeviceConnectTimeout bounds the TCP dial plus handshake with a reader.
	DeviceConnectTimeout = 5 * time.Second

	// DeviceCommandTimeout bounds a single command/response exchange.
	DeviceCommandTimeout = 3 * time.Second

	// CaptureStageTimeout bounds the wait for each capture event; a finger
	// that never arrives fails the session with a timeout.
	CaptureStageTimeout = 30 * time.Second

	// CancelGracePeriod bounds the wait for the device to acknowledge a
	// cancel command before the session is force-marked cancelled.
	CancelGracePeriod = 5 * time.Second

	// PoolAcquireTimeout bounds the wait for a device's exclusive slot.
	PoolAcquireTimeout = 2 * time.Second

	// LinkIdleTimeout is the inactivity window after which an idle device
	// link is disconnected by the pool reaper.
	LinkIdleTimeout = 2 * time.Minute

	// DeviceLeaseTTL is the lifetime of the distributed per-device lease.
	// It must exceed the longest possible session (all stages plus cancel
	// grace) so the lease never expires under a live enrollment.
	DeviceLeaseTTL = 3 * time.Minute

	// LivenessCacheTTL is how long a device liveness probe result is reused.
	LivenessCacheTTL = 10 * time.Second

	// DeviceLivenessWindow is how long after the last successful contact a
	// device is still presumed live without a fresh probe.
	DeviceLivenessWindow = 5 * time.Minute

	// EventChannelCapacity is the buffer size of a link's event channel.
	EventChannelCapacity = 16

	// SubscriberChannelCapacity is the buffer size of a broadcast subscriber
	// channel; a subscriber this far behind is dropped.
	SubscriberChannelCapacity = 64
)

// ================================================================================
// Cache Key Prefixes
// ================================================================================

const (
	// CacheKeyDeviceLease prefixes the distributed enrollment lease keys.
	CacheKeyDeviceLease = "enroll:lease:"

	// CacheKeyDeviceLiveness prefixes the device liveness cache keys.
	CacheKeyDeviceLiveness = "device:live:"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in request contexts.
type ContextKey string

const (
	// ContextKeyTenantID carries the authenticated tenant id.
	ContextKeyTenantID ContextKey = "tenant_id"

	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"
)

// ================================================================================
// Misc Limits
// ================================================================================

const (
	// FingerIndexMin and FingerIndexMax bound the finger index (0-9).
	FingerIndexMin = 0
	FingerIndexMax = 9

	// QualityMin and QualityMax bound the device-reported quality score.
	QualityMin = 0
	QualityMax = 100

	// DefaultPageSize and MaxPageSize bound listing endpoints.
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// LogLevel represents the logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
