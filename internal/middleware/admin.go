package middleware

import (
	"net/http"

	"billflow/internal/domain"

	"github.com/gin-gonic/gin"
)

// AdminRequired checks that the authenticated user has the ADMIN role.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if r, _ := role.(string); r != domain.RoleAdmin {
			abort(c, http.StatusForbidden, "admin access required", "FORBIDDEN")
			return
		}
		c.Next()
	}
}
