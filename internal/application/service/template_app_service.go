package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/device"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// TemplateAppService implements the template vault operations: metadata
// listings, retirement and the transfer of a stored template to a
// replacement device. Ciphertext leaves the vault only on the transfer path,
// decrypted just long enough to push it to the device.
type TemplateAppService struct {
	templates repository.TemplateRepository
	students  repository.StudentRepository
	registry  service.DeviceRegistry
	pool      *device.Pool
	cipher    service.TemplateCipher
	log       logger.Logger
}

// NewTemplateAppService creates the template service.
func NewTemplateAppService(
	templates repository.TemplateRepository,
	students repository.StudentRepository,
	registry service.DeviceRegistry,
	pool *device.Pool,
	cipher service.TemplateCipher,
	log logger.Logger,
) *TemplateAppService {
	return &TemplateAppService{
		templates: templates,
		students:  students,
		registry:  registry,
		pool:      pool,
		cipher:    cipher,
		log:       log.WithComponent("template_vault"),
	}
}

// ListTemplates returns the tenant's active template metadata, newest first.
func (s *TemplateAppService) ListTemplates(ctx context.Context, tenantID uuid.UUID, limit, offset int) (*dto.TemplateListResponse, error) {
	templates, total, err := s.templates.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, dto.TemplateResponseFrom(t))
	}
	return &dto.TemplateListResponse{Templates: out, Total: total}, nil
}

// ListStudentTemplates returns a student's active template metadata.
func (s *TemplateAppService) ListStudentTemplates(ctx context.Context, tenantID, studentID uuid.UUID) ([]*dto.TemplateResponse, error) {
	templates, err := s.templates.ListByStudent(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, dto.TemplateResponseFrom(t))
	}
	return out, nil
}

// RetireStudentTemplates marks all of a student's templates logically
// deleted. Ciphertext is retained.
func (s *TemplateAppService) RetireStudentTemplates(ctx context.Context, tenantID, studentID uuid.UUID) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return err
	}
	if student.TenantID != tenantID {
		return errors.ErrNotFound("student", studentID.String())
	}
	return s.templates.Retire(ctx, tenantID, studentID)
}

// TransferTemplate pushes a stored template to a replacement device, the
// recovery path after a reader is swapped out. The student must already be
// provisioned on the target device.
func (s *TemplateAppService) TransferTemplate(ctx context.Context, tenantID, templateID uuid.UUID, req *dto.TransferTemplateRequest) (*dto.TemplateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	template, err := s.templates.FindByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if template.TenantID != tenantID {
		return nil, errors.ErrNotFound("template", templateID.String())
	}
	if !template.Active {
		return nil, errors.ErrInvalidRequest("template is retired")
	}

	resolved, err := s.registry.Resolve(ctx, req.TargetDeviceID)
	if err != nil {
		return nil, err
	}
	if resolved.TenantID != tenantID {
		return nil, errors.ErrNotFound("device", req.TargetDeviceID.String())
	}

	onDevice, err := s.registry.HasStudent(ctx, req.TargetDeviceID, template.StudentID)
	if err != nil {
		return nil, err
	}
	if !onDevice {
		return nil, errors.ErrStudentNotOnDevice(template.StudentID.String(), req.TargetDeviceID.String())
	}
	userRef, err := s.registry.UserRef(ctx, template.StudentID)
	if err != nil {
		return nil, err
	}

	raw, err := s.cipher.Decrypt(ctx, template.Ciphertext, template.KeyID)
	if err != nil {
		return nil, err
	}

	handle, err := s.pool.Acquire(ctx, req.TargetDeviceID)
	if err != nil {
		return nil, err
	}
	if err := handle.Link().WriteTemplate(ctx, userRef, template.FingerIndex, raw, template.Quality); err != nil {
		handle.Discard()
		return nil, errors.ErrConnectionLost(req.TargetDeviceID.String()).WithCause(err)
	}
	handle.Release()

	if err := s.templates.UpdateDevice(ctx, template.ID, req.TargetDeviceID); err != nil {
		return nil, err
	}
	template.DeviceID = req.TargetDeviceID

	s.log.Info(ctx, "template transferred",
		logger.String("template_id", template.ID.String()),
		logger.String("device_id", req.TargetDeviceID.String()),
	)
	return dto.TemplateResponseFrom(template), nil
}
