package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// BulkService coordinates sequential enrollments of many students on one
// device. Sequential is deliberate: the device has a single sensor and a
// single operator walking students through it.
type BulkService struct {
	enrollments *EnrollmentAppService
	log         logger.Logger
}

// NewBulkService creates the bulk coordinator.
func NewBulkService(enrollments *EnrollmentAppService, log logger.Logger) *BulkService {
	return &BulkService{enrollments: enrollments, log: log.WithComponent("bulk_coordinator")}
}

// BulkEnroll runs the items in order. One item's failure is recorded and the
// run continues; only context cancellation aborts the remainder.
func (s *BulkService) BulkEnroll(ctx context.Context, tenantID uuid.UUID, req *dto.BulkEnrollmentRequest) (*dto.BulkEnrollmentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp := &dto.BulkEnrollmentResponse{
		Total:   len(req.Items),
		Results: make([]dto.BulkItemResult, 0, len(req.Items)),
	}

	for _, item := range req.Items {
		if err := ctx.Err(); err != nil {
			// The caller went away. Unprocessed items are reported as not
			// attempted rather than silently dropped.
			s.appendSkipped(resp, req.Items[len(resp.Results):])
			break
		}

		result := dto.BulkItemResult{StudentID: item.StudentID, FingerIndex: item.FingerIndex}
		sess, err := s.enrollments.EnrollAndWait(ctx, tenantID, item.StudentID, req.DeviceID, item.FingerIndex)
		if err != nil {
			// Validation failures produce no session record at all.
			result.Status = string(constants.SessionStatusFailed)
			result.ErrorCode = string(errors.CodeOf(err))
			result.ErrorMsg = err.Error()
			resp.Failed++
		} else {
			result.SessionID = sess.ID
			result.Status = string(sess.Status)
			result.ErrorCode = sess.ErrorCode
			result.ErrorMsg = sess.ErrorMsg
			if sess.Status == constants.SessionStatusCompleted {
				resp.Succeeded++
			} else {
				resp.Failed++
			}
		}
		resp.Results = append(resp.Results, result)
	}

	s.log.Info(ctx, "bulk enrollment finished",
		logger.String("device_id", req.DeviceID.String()),
		logger.Int("total", resp.Total),
		logger.Int("succeeded", resp.Succeeded),
		logger.Int("failed", resp.Failed),
	)
	return resp, nil
}

func (s *BulkService) appendSkipped(resp *dto.BulkEnrollmentResponse, remaining []dto.BulkItem) {
	for _, item := range remaining {
		resp.Results = append(resp.Results, dto.BulkItemResult{
			StudentID:   item.StudentID,
			FingerIndex: item.FingerIndex,
			Status:      string(constants.SessionStatusFailed),
			ErrorCode:   string(constants.ErrCodeInternal),
			ErrorMsg:    "bulk run aborted before this item was attempted",
		})
		resp.Failed++
	}
}
