package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nuevpro/ventas/internal/models"
	"github.com/nuevpro/ventas/internal/utils"
)

func RequireRole(allowed ...models.UserRole) gin.HandlerFunc {
	allow := map[string]struct{}{}
	for _, a := range allowed {
		if s := strings.ToLower(strings.TrimSpace(string(a))); s != "" {
			allow[s] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetString(CtxRole)))
		if _, ok := allow[role]; role == "" || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "forbidden",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin guards catalog writes (scenarios, challenges).
func RequireAdmin() gin.HandlerFunc { return RequireRole(models.RoleAdmin) }
