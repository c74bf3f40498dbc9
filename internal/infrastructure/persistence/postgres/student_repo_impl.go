package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// StudentRepoImpl implements StudentRepository on gorm.
type StudentRepoImpl struct {
	db  *gorm.DB
	log logger.Logger
}

// NewStudentRepository creates the gorm-backed student repository.
func NewStudentRepository(db *gorm.DB, log logger.Logger) repository.StudentRepository {
	return &StudentRepoImpl{db: db, log: log.WithComponent("student_repo")}
}

// Create registers a new student.
func (r *StudentRepoImpl) Create(ctx context.Context, student *models.Student) error {
	if err := r.db.WithContext(ctx).Create(student).Error; err != nil {
		r.log.Error(ctx, "failed to create student", err,
			logger.String("student_id", student.ID.String()),
		)
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to create student")
	}
	return nil
}

// FindByID retrieves a student by id.
func (r *StudentRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&student).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("student", id.String())
		}
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to retrieve student")
	}
	return &student, nil
}

// ListByTenant returns the tenant's students.
func (r *StudentRepoImpl) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Student, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("tenant_id = ?", tenantID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to count students")
	}

	if limit <= 0 || limit > constants.MaxPageSize {
		limit = constants.DefaultPageSize
	}

	var students []*models.Student
	err := q.Order("full_name").Limit(limit).Offset(offset).Find(&students).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to list students")
	}
	return students, total, nil
}
