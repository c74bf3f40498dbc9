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

// TemplateHandler serves the template vault endpoints. All responses are
// metadata only; ciphertext never crosses the API.
type TemplateHandler struct {
	templates *appservice.TemplateAppService
	log       logger.Logger
}

// NewTemplateHandler creates the handler.
func NewTemplateHandler(templates *appservice.TemplateAppService, log logger.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, log: log.WithComponent("template_handler")}
}

// List handles GET /templates.
func (h *TemplateHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	resp, err := h.templates.ListTemplates(c.Request.Context(), middleware.TenantID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListByStudent handles GET /students/:id/templates.
func (h *TemplateHandler) ListByStudent(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid student id"))
		return
	}
	resp, err := h.templates.ListStudentTemplates(c.Request.Context(), middleware.TenantID(c), studentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RetireByStudent handles DELETE /students/:id/templates.
func (h *TemplateHandler) RetireByStudent(c *gin.Context) {
	studentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid student id"))
		return
	}
	if err := h.templates.RetireStudentTemplates(c.Request.Context(), middleware.TenantID(c), studentID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transfer handles POST /templates/:id/transfer.
func (h *TemplateHandler) Transfer(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrInvalidRequest("invalid template id"))
		return
	}
	var req dto.TransferTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.ErrInvalidRequest(err.Error()))
		return
	}
	resp, err := h.templates.TransferTemplate(c.Request.Context(), middleware.TenantID(c), templateID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
