package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/domain/repository"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// ManagementService implements the tenant-scoped registry operations:
// students, devices, and the roster sync records that make a student
// enrollable on a device.
type ManagementService struct {
	students repository.StudentRepository
	devices  repository.DeviceRepository
	log      logger.Logger
}

// NewManagementService creates the management service.
func NewManagementService(students repository.StudentRepository, devices repository.DeviceRepository, log logger.Logger) *ManagementService {
	return &ManagementService{students: students, devices: devices, log: log.WithComponent("management")}
}

// CreateStudent registers an enrollable student.
func (s *ManagementService) CreateStudent(ctx context.Context, tenantID uuid.UUID, req *dto.CreateStudentRequest) (*dto.StudentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	student := models.NewStudent(tenantID, req.FullName, req.DeviceUserRef)
	if err := s.students.Create(ctx, student); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "student registered", logger.String("student_id", student.ID.String()))
	return dto.StudentResponseFrom(student), nil
}

// ListStudents returns the tenant's students.
func (s *ManagementService) ListStudents(ctx context.Context, tenantID uuid.UUID, limit, offset int) (*dto.StudentListResponse, error) {
	students, total, err := s.students.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.StudentResponse, 0, len(students))
	for _, student := range students {
		out = append(out, dto.StudentResponseFrom(student))
	}
	return &dto.StudentListResponse{Students: out, Total: total}, nil
}

// CreateDevice registers a fingerprint reader.
func (s *ManagementService) CreateDevice(ctx context.Context, tenantID uuid.UUID, req *dto.CreateDeviceRequest) (*dto.DeviceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	device := models.NewDevice(tenantID, req.Name, req.Address)
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "device registered",
		logger.String("device_id", device.ID.String()),
		logger.String("name", device.Name),
	)
	return dto.DeviceResponseFrom(device), nil
}

// ListDevices returns the tenant's devices.
func (s *ManagementService) ListDevices(ctx context.Context, tenantID uuid.UUID) ([]*dto.DeviceResponse, error) {
	devices, err := s.devices.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, dto.DeviceResponseFrom(d))
	}
	return out, nil
}

// SyncStudent records that the student's user record was provisioned on the
// device. Enrollment on a device is refused until this record exists.
func (s *ManagementService) SyncStudent(ctx context.Context, tenantID, deviceID uuid.UUID, req *dto.SyncStudentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.TenantID != tenantID {
		return errors.ErrNotFound("device", deviceID.String())
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return err
	}
	if student.TenantID != tenantID {
		return errors.ErrNotFound("student", req.StudentID.String())
	}

	entry := &models.DeviceUser{
		DeviceID:  deviceID,
		StudentID: student.ID,
		UserRef:   student.DeviceUserRef,
		SyncedAt:  time.Now().UTC(),
	}
	if err := s.devices.AddStudent(ctx, entry); err != nil {
		return err
	}
	s.log.Info(ctx, "student synced to device",
		logger.String("student_id", student.ID.String()),
		logger.String("device_id", deviceID.String()),
	)
	return nil
}
