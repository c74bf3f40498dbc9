// Package repository defines the persistence contracts of the domain layer.
// Implementations live in internal/infrastructure/persistence.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
)

// SessionFilter narrows ListByTenant results. Zero-value fields are ignored.
type SessionFilter struct {
	StudentID *uuid.UUID
	DeviceID  *uuid.UUID
	Limit     int
	Offset    int
}

// SessionRepository persists enrollment sessions. Sessions are enrollment
// history: they are created once, updated by the owning orchestrator, and
// never deleted.
type SessionRepository interface {
	// Create persists a new session record.
	Create(ctx context.Context, session *models.EnrollmentSession) error

	// Update persists the session's current state. The caller serializes
	// updates per session id; the repository does not arbitrate writers.
	Update(ctx context.Context, session *models.EnrollmentSession) error

	// FindByID retrieves a session by id.
	FindByID(ctx context.Context, id uuid.UUID) (*models.EnrollmentSession, error)

	// ListByTenant returns sessions for a tenant, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, filter SessionFilter) ([]*models.EnrollmentSession, int64, error)
}
