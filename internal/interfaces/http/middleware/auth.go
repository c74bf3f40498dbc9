// Package middleware holds the gin middleware: tenant authentication and
// request observability.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/presentio/presentio/internal/application/dto"
	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/pkg/constants"
)

// TenantClaims is the JWT claim set the API accepts. TenantID scopes every
// operation of the request.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// TenantAuth verifies the bearer token and stores the tenant id on the
// request context. Every API route sits behind it.
func TenantAuth(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &TenantClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithIssuer(cfg.Issuer))
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token")
			return
		}

		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil || tenantID == uuid.Nil {
			abortUnauthorized(c, "token carries no tenant")
			return
		}

		c.Set(string(constants.ContextKeyTenantID), tenantID)
		c.Next()
	}
}

// TenantID returns the authenticated tenant of the request.
func TenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(string(constants.ContextKeyTenantID)); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Code:    string(constants.ErrCodeUnauthorized),
		Message: message,
	})
}
