package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// TemplateRepoImpl implements TemplateRepository on gorm.
type TemplateRepoImpl struct {
	db  *gorm.DB
	log logger.Logger
}

// NewTemplateRepository creates the gorm-backed template repository.
func NewTemplateRepository(db *gorm.DB, log logger.Logger) repository.TemplateRepository {
	return &TemplateRepoImpl{db: db, log: log.WithComponent("template_repo")}
}

// Upsert stores a template after retiring any prior active template for the
// same (student, device, finger) triple, in one transaction. Supersede, never
// duplicate.
func (r *TemplateRepoImpl) Upsert(ctx context.Context, template *models.FingerprintTemplate) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.FingerprintTemplate{}).
			Where("tenant_id = ? AND student_id = ? AND device_id = ? AND finger_index = ? AND active = ?",
				template.TenantID, template.StudentID, template.DeviceID, template.FingerIndex, true).
			Update("active", false).Error
		if err != nil {
			return err
		}
		return tx.Create(template).Error
	})
	if err != nil {
		r.log.Error(ctx, "failed to upsert template", err,
			logger.String("student_id", template.StudentID.String()),
			logger.String("device_id", template.DeviceID.String()),
			logger.Int("finger_index", template.FingerIndex),
		)
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store template")
	}
	return nil
}

// FindByID retrieves a template, including ciphertext.
func (r *TemplateRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.FingerprintTemplate, error) {
	var template models.FingerprintTemplate
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("template", id.String())
		}
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to retrieve template")
	}
	return &template, nil
}

// ListByStudent returns the active templates of a student.
func (r *TemplateRepoImpl) ListByStudent(ctx context.Context, tenantID, studentID uuid.UUID) ([]*models.FingerprintTemplate, error) {
	var templates []*models.FingerprintTemplate
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND student_id = ? AND active = ?", tenantID, studentID, true).
		Order("created_at DESC").
		Find(&templates).Error
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to list templates")
	}
	return templates, nil
}

// ListByTenant returns the tenant's active templates, newest first.
func (r *TemplateRepoImpl) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.FingerprintTemplate, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.FingerprintTemplate{}).
		Where("tenant_id = ? AND active = ?", tenantID, true)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to count templates")
	}

	if limit <= 0 || limit > constants.MaxPageSize {
		limit = constants.DefaultPageSize
	}

	var templates []*models.FingerprintTemplate
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&templates).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to list templates")
	}
	return templates, total, nil
}

// Retire marks all active templates of a student logically deleted.
func (r *TemplateRepoImpl) Retire(ctx context.Context, tenantID, studentID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.FingerprintTemplate{}).
		Where("tenant_id = ? AND student_id = ? AND active = ?", tenantID, studentID, true).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to retire templates")
	}
	return nil
}

// UpdateDevice records a new device residency after a transfer.
func (r *TemplateRepoImpl) UpdateDevice(ctx context.Context, id, deviceID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.FingerprintTemplate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"device_id": deviceID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return errors.Wrap(result.Error, constants.ErrCodeInternal, "failed to update template device")
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound("template", id.String())
	}
	return nil
}
