// Package device implements the link layer to fingerprint readers: the
// capability interface shared by real and simulated devices, the TCP wire
// protocol, and the connection pool enforcing one enrollment per device.
package device

import (
	"context"
	"errors"
	"time"
)

// EventKind identifies a capture event reported by a device.
type EventKind string

const (
	// EventCapturePlaced means a finger was detected on the sensor.
	EventCapturePlaced EventKind = "capture_placed"

	// EventCaptureHeld means the finger is held and sampling is underway.
	EventCaptureHeld EventKind = "capture_held"

	// EventCaptureComplete carries the captured template and quality score.
	EventCaptureComplete EventKind = "capture_complete"

	// EventCaptureRejected means the device discarded the sample.
	EventCaptureRejected EventKind = "capture_rejected"

	// EventCancelAck confirms a cancel command took effect on the device.
	EventCancelAck EventKind = "cancel_ack"
)

// Event is one capture event from a device.
type Event struct {
	Kind     EventKind
	Template []byte
	Quality  int
	Reason   string
}

// ErrPollTimeout is the timeout sentinel returned by PollEvent when no event
// arrived within the deadline. It is never a device failure by itself.
var ErrPollTimeout = errors.New("device: poll timeout")

// ErrLinkClosed is returned by operations on a disconnected link.
var ErrLinkClosed = errors.New("device: link closed")

// Link is the bidirectional channel to one device. Implementations hide
// whether the device is a network-attached reader or a simulator; the
// orchestrator's state machine is identical for both.
//
// A Link is not safe for concurrent command use; the pool guarantees at most
// one holder at a time.
type Link interface {
	// Connect establishes the channel. It fails with an Unreachable error
	// when the device does not answer within the bounded timeout, and with
	// AuthRejected when the communication secret is refused.
	Connect(ctx context.Context) error

	// StartEnrollment asks the device to begin capturing the given finger
	// of the on-device user. It fails with DeviceBusy when the device
	// reports another exclusive operation in flight.
	StartEnrollment(ctx context.Context, userRef uint32, fingerIndex int) error

	// CancelEnrollment asks the device to abort the current capture.
	// Acknowledgement arrives as an EventCancelAck via PollEvent.
	CancelEnrollment(ctx context.Context) error

	// PollEvent returns the next capture event, or ErrPollTimeout once the
	// timeout elapses. It never blocks past its deadline.
	PollEvent(ctx context.Context, timeout time.Duration) (Event, error)

	// ReadTemplate reads back the stored template for the user and finger.
	ReadTemplate(ctx context.Context, userRef uint32, fingerIndex int) ([]byte, int, error)

	// WriteTemplate pushes a template to the device, used by the
	// transfer-to-replacement-device flow.
	WriteTemplate(ctx context.Context, userRef uint32, fingerIndex int, template []byte, quality int) error

	// Disconnect tears the channel down. It is idempotent.
	Disconnect() error

	// Connected reports whether the link is currently usable.
	Connected() bool

	// LastActivity returns the time of the last successful exchange, used
	// by the pool's idle reaper.
	LastActivity() time.Time
}

// LinkFactory builds a Link for a resolved device address.
type LinkFactory interface {
	New(deviceID string, address string) Link
}
