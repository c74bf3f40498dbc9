package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	appservice "github.com/presentio/presentio/internal/application/service"
	"github.com/presentio/presentio/internal/interfaces/http/middleware"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// ManagementHandler serves the student and device registry endpoints.
type ManagementHandler struct {
	management *appservice.ManagementService
	log        logger.Logger
}

// NewManagementHandler creates the handler.
func NewManagementHandler(management *appservice.ManagementService, log logger.Logger) *ManagementHandler {
	return &ManagementHandler{management: management, log: log.WithComponent("management_handler")}
}

// CreateStudent handles POST /students.
func (h *ManagementHandler) CreateStudent(c *gin.Context) {
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.management.CreateStudent(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListStudents handles GET /students.
func (h *ManagementHandler) ListStudents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	resp, err := h.management.ListStudents(c.Request.Context(), middleware.TenantID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateDevice handles POST /devices.
func (h *ManagementHandler) CreateDevice(c *gin.Context) {
	var req dto.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.management.CreateDevice(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListDevices handles GET /devices.
func (h *ManagementHandler) ListDevices(c *gin.Context) {
	resp, err := h.management.ListDevices(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SyncStudent handles POST /devices/:id/students, recording that a student's
// user record was provisioned on the device.
func (h *ManagementHandler) SyncStudent(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid device id"))
		return
	}
	var req dto.SyncStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	if err := h.management.SyncStudent(c.Request.Context(), middleware.TenantID(c), deviceID, &req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
