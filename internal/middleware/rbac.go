package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/response"
)

// RequireAdmin restricts a route to accounts holding the admin claim.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.Admin {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin privileges required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireApproved admits admins and pending accounts alike. Pending users
// keep read access to portal surfaces while they wait for the admin claim.
func RequireApproved() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		switch claims.Role {
		case models.RoleAdmin, models.RolePending:
			c.Next()
		default:
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
		}
	}
}

// RequireVerified blocks accounts whose email address is not verified.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := currentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.EmailVerified {
			response.Error(c, appErrors.ErrNotVerified)
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claimsValue, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := claimsValue.(*models.JWTClaims)
	return claims, ok
}
