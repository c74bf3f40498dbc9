package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/device"
	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/internal/infrastructure/registry"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

func newTemplateService(h *harness) *TemplateAppService {
	log := logger.NewNoopLogger()
	reg := registry.NewDeviceRegistry(h.devices, h.students, nil, time.Minute, log)
	return NewTemplateAppService(h.templates, h.students, reg, h.pool, h.cipher, log)
}

// enrollOne runs a full enrollment and returns the stored template id.
func enrollOne(t *testing.T, h *harness, student *models.Student, dev *models.Device) uuid.UUID {
	t.Helper()
	sess, err := h.svc.EnrollAndWait(context.Background(), h.tenantID, student.ID, dev.ID, 0)
	require.NoError(t, err)
	require.Equal(t, constants.SessionStatusCompleted, sess.Status)
	require.NotNil(t, sess.TemplateID)
	return *sess.TemplateID
}

func TestTransferTemplate(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	templateID := enrollOne(t, h, student, source)

	// Replacement reader with the student already provisioned.
	target := models.NewDevice(h.tenantID, "gate-2", "")
	require.NoError(t, h.devices.Create(ctx, target))
	require.NoError(t, h.devices.AddStudent(ctx, &models.DeviceUser{
		DeviceID: target.ID, StudentID: student.ID, UserRef: 7, SyncedAt: time.Now().UTC(),
	}))

	resp, err := svc.TransferTemplate(ctx, h.tenantID, templateID, &dto.TransferTemplateRequest{
		TargetDeviceID: target.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, resp.DeviceID)

	// The template now lives on the target device's store.
	handle, err := h.pool.Acquire(ctx, target.ID)
	require.NoError(t, err)
	defer handle.Release()
	raw, _, err := handle.Link().ReadTemplate(ctx, 7, 0)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "SIMTPL")

	stored, err := h.templates.FindByID(ctx, templateID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, stored.DeviceID)
}

func TestTransferTemplateTargetMissingRoster(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	templateID := enrollOne(t, h, student, source)

	target := models.NewDevice(h.tenantID, "gate-2", "")
	require.NoError(t, h.devices.Create(ctx, target))

	_, err := svc.TransferTemplate(ctx, h.tenantID, templateID, &dto.TransferTemplateRequest{
		TargetDeviceID: target.ID,
	})
	assert.True(t, errors.IsCode(err, constants.ErrCodeStudentNotOnDevice))
}

func TestTransferRetiredTemplateRejected(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	templateID := enrollOne(t, h, student, source)
	require.NoError(t, h.templates.Retire(ctx, h.tenantID, student.ID))

	_, err := svc.TransferTemplate(ctx, h.tenantID, templateID, &dto.TransferTemplateRequest{
		TargetDeviceID: source.ID,
	})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
}

func TestTransferTemplateTenantScoped(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	templateID := enrollOne(t, h, student, source)

	_, err := svc.TransferTemplate(ctx, uuid.New(), templateID, &dto.TransferTemplateRequest{
		TargetDeviceID: source.ID,
	})
	assert.True(t, errors.IsCode(err, constants.ErrCodeNotFound))
}

func TestRetireStudentTemplates(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	enrollOne(t, h, student, source)

	listed, err := svc.ListStudentTemplates(ctx, h.tenantID, student.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, svc.RetireStudentTemplates(ctx, h.tenantID, student.ID))
	listed, err = svc.ListStudentTemplates(ctx, h.tenantID, student.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Foreign tenant cannot retire.
	err = svc.RetireStudentTemplates(ctx, uuid.New(), student.ID)
	assert.True(t, errors.IsCode(err, constants.ErrCodeNotFound))
}

func TestListTemplatesExposesMetadataOnly(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	svc := newTemplateService(h)
	ctx := context.Background()

	student, source := h.addSubjects(t, 7, true)
	enrollOne(t, h, student, source)

	resp, err := svc.ListTemplates(ctx, h.tenantID, 0, 0)
	require.NoError(t, err)
	require.Len(t, resp.Templates, 1)
	got := resp.Templates[0]
	assert.Equal(t, student.ID, got.StudentID)
	assert.Equal(t, "v1", got.KeyID)
	assert.True(t, got.Active)
	assert.Greater(t, got.Quality, 0)
}
