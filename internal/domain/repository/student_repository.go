package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/domain/models"
)

// StudentRepository persists students.
type StudentRepository interface {
	// Create registers a new student.
	Create(ctx context.Context, student *models.Student) error

	// FindByID retrieves a student by id.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Student, error)

	// ListByTenant returns the tenant's students.
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Student, int64, error)
}
