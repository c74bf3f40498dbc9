// Package service defines the domain-level collaborator interfaces the
// orchestration core depends on. Implementations live in
// internal/infrastructure and internal/broadcast.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
)

// ResolvedDevice is the registry's answer for a logical device id.
type ResolvedDevice struct {
	DeviceID uuid.UUID
	TenantID uuid.UUID
	Address  string
	IsLive   bool
}

// DeviceRegistry resolves logical device ids to network endpoints and
// liveness, and answers roster questions about provisioned students.
type DeviceRegistry interface {
	// Resolve returns the device's address and liveness status.
	Resolve(ctx context.Context, deviceID uuid.UUID) (*ResolvedDevice, error)

	// HasStudent reports whether the student's user record exists on the
	// device. Enrollment fails fast with StudentNotOnDevice when it does not.
	HasStudent(ctx context.Context, deviceID, studentID uuid.UUID) (bool, error)

	// UserRef returns the numeric on-device user id for the student.
	UserRef(ctx context.Context, studentID uuid.UUID) (uint32, error)

	// MarkSeen records a successful contact with the device.
	MarkSeen(ctx context.Context, deviceID uuid.UUID)
}

// TemplateCipher encrypts template bytes on write and decrypts on read.
// The key id returned by Encrypt is recorded alongside the ciphertext so key
// rotation never silently orphans old records.
type TemplateCipher interface {
	// Encrypt seals raw template bytes under the active key.
	Encrypt(ctx context.Context, raw []byte) (ciphertext []byte, keyID string, err error)

	// Decrypt opens ciphertext sealed under the given key version. It
	// returns a TemplateUnreadable error for corrupt or undecryptable input.
	Decrypt(ctx context.Context, ciphertext []byte, keyID string) ([]byte, error)
}

// Broadcaster fans lifecycle events out to live, tenant-scoped observers.
// Publication is best-effort: a slow subscriber is dropped, never waited on.
type Broadcaster interface {
	// Subscribe returns a channel of events for the tenant and a cancel
	// function that removes the subscription and closes the channel.
	Subscribe(tenantID uuid.UUID) (<-chan models.ProgressEvent, func())

	// Publish delivers the event to all current subscribers of the tenant.
	// It is a no-op when there are none.
	Publish(tenantID uuid.UUID, event models.ProgressEvent)
}

// EnrollmentNotifier is the boundary to the messaging provider invoked after
// a session reaches a terminal state. Delivery failures are logged, never
// propagated into the session outcome.
type EnrollmentNotifier interface {
	SessionFinished(ctx context.Context, event models.ProgressEvent)
}

// DeviceLease is the distributed per-device enrollment lease used when
// multiple orchestrator instances share a device fleet. The in-process pool
// slot remains the first line of exclusion; the lease extends it across
// processes.
type DeviceLease interface {
	// Acquire takes the lease for the device on behalf of owner. It returns
	// false without waiting when another owner holds it.
	Acquire(ctx context.Context, deviceID uuid.UUID, owner string, ttl time.Duration) (bool, error)

	// Release drops the lease if owner still holds it. Releasing a lease
	// that expired or belongs to someone else is a no-op.
	Release(ctx context.Context, deviceID uuid.UUID, owner string) error
}
