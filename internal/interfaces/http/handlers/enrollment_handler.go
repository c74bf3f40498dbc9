package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appservice "github.com/presentio/presentio/internal/application/service"
	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/internal/interfaces/http/middleware"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// EnrollmentHandler serves the enrollment session endpoints and the live
// progress stream.
type EnrollmentHandler struct {
	enrollments *appservice.EnrollmentAppService
	bulk        *appservice.BulkService
	broadcaster service.Broadcaster
	log         logger.Logger
}

// NewEnrollmentHandler creates the handler.
func NewEnrollmentHandler(
	enrollments *appservice.EnrollmentAppService,
	bulk *appservice.BulkService,
	broadcaster service.Broadcaster,
	log logger.Logger,
) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		bulk:        bulk,
		broadcaster: broadcaster,
		log:         log.WithComponent("enrollment_handler"),
	}
}

// Start handles POST /enrollments. The session is accepted and runs
// asynchronously; progress arrives on the stream.
func (h *EnrollmentHandler) Start(c *gin.Context) {
	var req dto.StartEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.enrollments.StartEnrollment(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Cancel handles POST /enrollments/:id/cancel.
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid session id"))
		return
	}
	resp, err := h.enrollments.CancelEnrollment(c.Request.Context(), middleware.TenantID(c), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

// Get handles GET /enrollments/:id.
func (h *EnrollmentHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid session id"))
		return
	}
	resp, err := h.enrollments.GetEnrollment(c.Request.Context(), middleware.TenantID(c), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List handles GET /enrollments.
func (h *EnrollmentHandler) List(c *gin.Context) {
	query := &dto.ListSessionsQuery{}
	if raw := c.Query("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, errors.ErrInvalidRequest("invalid student_id"))
			return
		}
		query.StudentID = &id
	}
	if raw := c.Query("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, errors.ErrInvalidRequest("invalid device_id"))
			return
		}
		query.DeviceID = &id
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := h.enrollments.ListEnrollments(c.Request.Context(), middleware.TenantID(c), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Bulk handles POST /enrollments/bulk. The run is synchronous and sequential;
// the response carries one result per item.
func (h *EnrollmentHandler) Bulk(c *gin.Context) {
	var req dto.BulkEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.bulk.BulkEnroll(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream handles GET /enrollments/stream. It serves the tenant's live
// progress events over SSE until the client disconnects. Events published
// before the subscription are not replayed; the session record is the
// authoritative history.
func (h *EnrollmentHandler) Stream(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	events, cancel := h.broadcaster.Subscribe(tenantID)
	defer cancel()

	h.log.Debug(c.Request.Context(), "stream subscriber attached",
		logger.String("tenant_id", tenantID.String()),
	)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Flush the header frame so the client knows the subscription is live
	// before the first event arrives.
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-events:
			if !ok {
				// Dropped for falling behind; the client reconnects.
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
