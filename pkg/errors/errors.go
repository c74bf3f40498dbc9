// Package errors defines the structured error types used across the
// enrollment service. Every failure surfaced to a caller carries a stable
// error code from the taxonomy, an HTTP status for the transport layer, and
// optional metadata for audit records.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/presentio/presentio/pkg/constants"
)

// Error is the structured error carried through the service. It wraps an
// optional cause and an open metadata map recorded on the session and in
// audit events.
type Error interface {
	error

	// Code returns the stable taxonomy code.
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status the transport layer should emit.
	HTTPStatus() int

	// Description returns the generic human-readable description of the class.
	Description() string

	// Unwrap returns the underlying cause for errors.Is/As support.
	Unwrap() error

	// WithCause attaches a cause to the error chain.
	WithCause(cause error) Error

	// WithMetadata attaches a context key/value pair.
	WithMetadata(key string, value interface{}) Error

	// Metadata returns all attached metadata.
	Metadata() map[string]interface{}
}

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) WithCause(cause error) Error {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) Error {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} { return e.metadata }

// New creates an Error with the given code, HTTP status, class description
// and instance message.
func New(code constants.ErrorCode, httpStatus int, description, message string) Error {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// Wrap converts a generic error into an Error with the given code and message.
func Wrap(err error, code constants.ErrorCode, message string) Error {
	return New(code, http.StatusInternalServerError, message, message).WithCause(err)
}

// ================================================================================
// Connectivity Errors
// ================================================================================

// ErrDeviceOffline reports a device the registry considers not live.
func ErrDeviceOffline(deviceID string) Error {
	return New(
		constants.ErrCodeDeviceOffline,
		http.StatusConflict,
		"The device registry reports the device as not live.",
		fmt.Sprintf("device %s is offline", deviceID),
	).WithMetadata("device_id", deviceID)
}

// ErrConnectionLost reports a device link dropped mid-protocol.
func ErrConnectionLost(deviceID string) Error {
	return New(
		constants.ErrCodeConnectionLost,
		http.StatusBadGateway,
		"The device link was lost before the session reached a terminal state.",
		fmt.Sprintf("connection to device %s lost", deviceID),
	).WithMetadata("device_id", deviceID)
}

// ErrUnreachable reports a device that did not answer the connect attempt
// within the bounded timeout.
func ErrUnreachable(address string) Error {
	return New(
		constants.ErrCodeUnreachable,
		http.StatusBadGateway,
		"The device did not answer within the connection timeout.",
		fmt.Sprintf("device at %s is unreachable", address),
	).WithMetadata("address", address)
}

// ErrAuthRejected reports a device rejecting the configured communication secret.
func ErrAuthRejected(deviceID string) Error {
	return New(
		constants.ErrCodeAuthRejected,
		http.StatusBadGateway,
		"The device rejected the configured communication secret.",
		fmt.Sprintf("device %s rejected authentication", deviceID),
	).WithMetadata("device_id", deviceID)
}

// ================================================================================
// Contention Errors
// ================================================================================

// ErrDeviceBusy reports a device whose exclusive enrollment slot is held,
// either by another local caller or as reported by the device itself.
func ErrDeviceBusy(deviceID string) Error {
	return New(
		constants.ErrCodeDeviceBusy,
		http.StatusConflict,
		"Another enrollment is already in flight on this device.",
		fmt.Sprintf("device %s is busy", deviceID),
	).WithMetadata("device_id", deviceID)
}

// ================================================================================
// Protocol / Capture Errors
// ================================================================================

// ErrPoorQuality reports a capture the device rejected.
func ErrPoorQuality(reason string) Error {
	return New(
		constants.ErrCodePoorQuality,
		http.StatusUnprocessableEntity,
		"The device rejected the captured sample.",
		fmt.Sprintf("capture rejected: %s", reason),
	).WithMetadata("reason", reason)
}

// ErrTimeout reports a capture stage that produced no event within its deadline.
func ErrTimeout(stage string) Error {
	return New(
		constants.ErrCodeTimeout,
		http.StatusGatewayTimeout,
		"The device produced no event within the stage timeout.",
		fmt.Sprintf("timed out waiting in stage %s", stage),
	).WithMetadata("stage", stage)
}

// ErrTemplateCaptureError reports a template read that failed after the
// device signalled a completed capture.
func ErrTemplateCaptureError(deviceID string) Error {
	return New(
		constants.ErrCodeTemplateCaptureError,
		http.StatusBadGateway,
		"The template could not be read back after the device reported completion.",
		fmt.Sprintf("failed to read template from device %s", deviceID),
	).WithMetadata("device_id", deviceID)
}

// ================================================================================
// Precondition Errors
// ================================================================================

// ErrStudentNotOnDevice reports an enrollment attempt for a student whose
// user record is not provisioned on the target device.
func ErrStudentNotOnDevice(studentID, deviceID string) Error {
	return New(
		constants.ErrCodeStudentNotOnDevice,
		http.StatusPreconditionFailed,
		"The student's user record does not exist on the target device; sync it first.",
		fmt.Sprintf("student %s is not provisioned on device %s", studentID, deviceID),
	).WithMetadata("student_id", studentID).WithMetadata("device_id", deviceID)
}

// ErrNotCancellable reports a cancel request against a session that is not in progress.
func ErrNotCancellable(sessionID string, status constants.SessionStatus) Error {
	return New(
		constants.ErrCodeNotCancellable,
		http.StatusConflict,
		"Only an in-progress session can be cancelled.",
		fmt.Sprintf("session %s is %s and cannot be cancelled", sessionID, status),
	).WithMetadata("session_id", sessionID).WithMetadata("status", string(status))
}

// ================================================================================
// Data Errors
// ================================================================================

// ErrTemplateUnreadable reports ciphertext that could not be decrypted,
// typically after a key rotation without re-encryption.
func ErrTemplateUnreadable(detail string) Error {
	return New(
		constants.ErrCodeTemplateUnreadable,
		http.StatusInternalServerError,
		"The stored template ciphertext could not be decrypted.",
		fmt.Sprintf("template unreadable: %s", detail),
	)
}

// ================================================================================
// Generic Errors
// ================================================================================

// ErrInternal reports an unexpected internal failure.
func ErrInternal(message string) Error {
	return New(
		constants.ErrCodeInternal,
		http.StatusInternalServerError,
		"The service encountered an unexpected condition.",
		message,
	)
}

// ErrInvalidRequest reports a malformed or out-of-range request.
func ErrInvalidRequest(message string) Error {
	return New(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid value.",
		message,
	)
}

// ErrUnauthorized reports a request without a valid tenant identity.
func ErrUnauthorized(message string) Error {
	return New(
		constants.ErrCodeUnauthorized,
		http.StatusUnauthorized,
		"The request carries no valid tenant identity.",
		message,
	)
}

// ErrForbidden reports a request whose subject belongs to another tenant.
func ErrForbidden(message string) Error {
	return New(
		constants.ErrCodeForbidden,
		http.StatusForbidden,
		"The referenced resource does not belong to the caller's tenant.",
		message,
	)
}

// ErrNotFound reports a missing resource.
func ErrNotFound(resource, id string) Error {
	return New(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource does not exist.",
		fmt.Sprintf("%s %s not found", resource, id),
	).WithMetadata("resource", resource).WithMetadata("id", id)
}

// ================================================================================
// Inspection Utilities
// ================================================================================

// As attempts to extract a structured Error from an error chain.
func As(err error) (Error, bool) {
	var e Error
	ok := errors.As(err, &e)
	return e, ok
}

// CodeOf returns the taxonomy code of err, or ErrCodeInternal for plain errors.
func CodeOf(err error) constants.ErrorCode {
	if e, ok := As(err); ok {
		return e.Code()
	}
	return constants.ErrCodeInternal
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code constants.ErrorCode) bool {
	return CodeOf(err) == code
}
