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
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

func (h *harness) addRosteredStudent(t *testing.T, dev *models.Device, userRef uint32) *models.Student {
	t.Helper()
	ctx := context.Background()
	student := models.NewStudent(h.tenantID, "Bulk Student", userRef)
	require.NoError(t, h.students.Create(ctx, student))
	require.NoError(t, h.devices.AddStudent(ctx, &models.DeviceUser{
		DeviceID:  dev.ID,
		StudentID: student.ID,
		UserRef:   userRef,
		SyncedAt:  time.Now().UTC(),
	}))
	return student
}

func TestBulkEnrollAllSucceed(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	bulk := NewBulkService(h.svc, logger.NewNoopLogger())
	ctx := context.Background()

	dev := models.NewDevice(h.tenantID, "gate-1", "")
	require.NoError(t, h.devices.Create(ctx, dev))

	req := &dto.BulkEnrollmentRequest{DeviceID: dev.ID}
	for i := uint32(1); i <= 3; i++ {
		student := h.addRosteredStudent(t, dev, i)
		req.Items = append(req.Items, dto.BulkItem{StudentID: student.ID})
	}

	resp, err := bulk.BulkEnroll(ctx, h.tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 3, resp.Succeeded)
	assert.Equal(t, 0, resp.Failed)
	require.Len(t, resp.Results, 3)
	for i, result := range resp.Results {
		assert.Equal(t, req.Items[i].StudentID, result.StudentID)
		assert.Equal(t, string(constants.SessionStatusCompleted), result.Status)
		assert.NotEqual(t, uuid.Nil, result.SessionID)
	}
}

func TestBulkEnrollFailureIsIsolated(t *testing.T) {
	h := newHarness(t, device.SimConfig{
		RejectUserRefs: map[uint32]string{2: "sensor smudged"},
	})
	bulk := NewBulkService(h.svc, logger.NewNoopLogger())
	ctx := context.Background()

	dev := models.NewDevice(h.tenantID, "gate-1", "")
	require.NoError(t, h.devices.Create(ctx, dev))

	req := &dto.BulkEnrollmentRequest{DeviceID: dev.ID}
	for i := uint32(1); i <= 3; i++ {
		student := h.addRosteredStudent(t, dev, i)
		req.Items = append(req.Items, dto.BulkItem{StudentID: student.ID})
	}

	resp, err := bulk.BulkEnroll(ctx, h.tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)

	// The middle item fails; its neighbours are untouched.
	assert.Equal(t, string(constants.SessionStatusCompleted), resp.Results[0].Status)
	assert.Equal(t, string(constants.SessionStatusFailed), resp.Results[1].Status)
	assert.Equal(t, string(constants.ErrCodePoorQuality), resp.Results[1].ErrorCode)
	assert.Equal(t, string(constants.SessionStatusCompleted), resp.Results[2].Status)

	// Each outcome is recorded on its own session.
	for _, result := range resp.Results {
		sess, err := h.sessions.FindByID(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, result.Status, string(sess.Status))
	}
}

func TestBulkEnrollValidationFailureProducesNoSession(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	bulk := NewBulkService(h.svc, logger.NewNoopLogger())
	ctx := context.Background()

	dev := models.NewDevice(h.tenantID, "gate-1", "")
	require.NoError(t, h.devices.Create(ctx, dev))
	student := h.addRosteredStudent(t, dev, 1)

	req := &dto.BulkEnrollmentRequest{
		DeviceID: dev.ID,
		Items: []dto.BulkItem{
			{StudentID: uuid.New()}, // unknown student
			{StudentID: student.ID},
		},
	}
	resp, err := bulk.BulkEnroll(ctx, h.tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	assert.Equal(t, uuid.Nil, resp.Results[0].SessionID)
	assert.Equal(t, string(constants.ErrCodeNotFound), resp.Results[0].ErrorCode)
	assert.Equal(t, string(constants.SessionStatusCompleted), resp.Results[1].Status)
}

func TestBulkEnrollRequestValidation(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	bulk := NewBulkService(h.svc, logger.NewNoopLogger())
	ctx := context.Background()

	_, err := bulk.BulkEnroll(ctx, h.tenantID, &dto.BulkEnrollmentRequest{DeviceID: uuid.New()})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))

	items := make([]dto.BulkItem, dto.MaxBulkItems+1)
	for i := range items {
		items[i] = dto.BulkItem{StudentID: uuid.New()}
	}
	_, err = bulk.BulkEnroll(ctx, h.tenantID, &dto.BulkEnrollmentRequest{DeviceID: uuid.New(), Items: items})
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
}

func TestBulkEnrollAbortedContextSkipsRemainder(t *testing.T) {
	h := newHarness(t, device.SimConfig{})
	bulk := NewBulkService(h.svc, logger.NewNoopLogger())

	dev := models.NewDevice(h.tenantID, "gate-1", "")
	require.NoError(t, h.devices.Create(context.Background(), dev))

	req := &dto.BulkEnrollmentRequest{DeviceID: dev.ID}
	for i := uint32(1); i <= 3; i++ {
		student := h.addRosteredStudent(t, dev, i)
		req.Items = append(req.Items, dto.BulkItem{StudentID: student.ID})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := bulk.BulkEnroll(ctx, h.tenantID, req)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 0, resp.Succeeded)
	assert.Equal(t, 3, resp.Failed)
	require.Len(t, resp.Results, 3)
	for _, result := range resp.Results {
		assert.Equal(t, string(constants.SessionStatusFailed), result.Status)
	}
}
