// Package handlers holds the gin HTTP handlers of the API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
)

// respondError maps a service error to the uniform error envelope. Errors
// outside the taxonomy become opaque internal errors.
func respondError(c *gin.Context, err error) {
	if e, ok := errors.As(err); ok {
		c.JSON(e.HTTPStatus(), dto.ErrorResponse{
			Code:    string(e.Code()),
			Message: e.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Code:    string(constants.ErrCodeInternal),
		Message: "internal error",
	})
}
