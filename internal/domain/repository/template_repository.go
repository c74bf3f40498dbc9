package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
)

// TemplateRepository persists encrypted fingerprint templates.
type TemplateRepository interface {
	// Upsert stores a template, superseding any prior active template for
	// the same (student, device, finger) triple. The superseded record is
	// retired, not deleted.
	Upsert(ctx context.Context, template *models.FingerprintTemplate) error

	// FindByID retrieves a template, including ciphertext.
	FindByID(ctx context.Context, id uuid.UUID) (*models.FingerprintTemplate, error)

	// ListByStudent returns the active templates of a student. Callers
	// exposing listings must strip ciphertext.
	ListByStudent(ctx context.Context, tenantID, studentID uuid.UUID) ([]*models.FingerprintTemplate, error)

	// ListByTenant returns the tenant's active templates, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.FingerprintTemplate, int64, error)

	// Retire marks all active templates of a student logically deleted,
	// for student or enrollment deactivation.
	Retire(ctx context.Context, tenantID, studentID uuid.UUID) error

	// UpdateDevice records a new device residency after a transfer.
	UpdateDevice(ctx context.Context, id, deviceID uuid.UUID) error
}
