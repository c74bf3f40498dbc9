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

// SessionRepoImpl implements SessionRepository on gorm.
type SessionRepoImpl struct {
	db  *gorm.DB
	log logger.Logger
}

// NewSessionRepository creates the gorm-backed session repository.
func NewSessionRepository(db *gorm.DB, log logger.Logger) repository.SessionRepository {
	return &SessionRepoImpl{db: db, log: log.WithComponent("session_repo")}
}

// Create persists a new session record.
func (r *SessionRepoImpl) Create(ctx context.Context, session *models.EnrollmentSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		r.log.Error(ctx, "failed to create session", err,
			logger.String("session_id", session.ID.String()),
		)
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to create session")
	}
	return nil
}

// Update persists the session's current state.
func (r *SessionRepoImpl) Update(ctx context.Context, session *models.EnrollmentSession) error {
	result := r.db.WithContext(ctx).
		Model(&models.EnrollmentSession{}).
		Where("id = ?", session.ID).
		Select("Status", "Stage", "Progress", "Message", "ErrorCode", "ErrorMsg",
			"Quality", "TemplateID", "StartedAt", "CompletedAt").
		Updates(session)
	if result.Error != nil {
		r.log.Error(ctx, "failed to update session", result.Error,
			logger.String("session_id", session.ID.String()),
		)
		return errors.Wrap(result.Error, constants.ErrCodeInternal, "failed to update session")
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound("session", session.ID.String())
	}
	return nil
}

// FindByID retrieves a session by id.
func (r *SessionRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.EnrollmentSession, error) {
	var session models.EnrollmentSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrNotFound("session", id.String())
		}
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to retrieve session")
	}
	return &session, nil
}

// ListByTenant returns sessions for a tenant, newest first.
func (r *SessionRepoImpl) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter repository.SessionFilter) ([]*models.EnrollmentSession, int64, error) {
	q := r.db.WithContext(ctx).
		Model(&models.EnrollmentSession{}).
		Where("tenant_id = ?", tenantID)
	if filter.StudentID != nil {
		q = q.Where("student_id = ?", *filter.StudentID)
	}
	if filter.DeviceID != nil {
		q = q.Where("device_id = ?", *filter.DeviceID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to count sessions")
	}

	limit := filter.Limit
	if limit <= 0 || limit > constants.MaxPageSize {
		limit = constants.DefaultPageSize
	}

	var sessions []*models.EnrollmentSession
	err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&sessions).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, constants.ErrCodeInternal, "failed to list sessions")
	}
	return sessions, total, nil
}
