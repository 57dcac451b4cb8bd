package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nuevpro/ventas/internal/ratelimit"
	"github.com/nuevpro/ventas/internal/utils"
)

// RateLimit applies a per-user window to AI-backed routes. A limiter outage
// lets the request through.
func RateLimit(lim ratelimit.Limiter, l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lim == nil {
			c.Next()
			return
		}
		key := c.GetString(CtxUserID)
		if key == "" {
			key = c.ClientIP()
		}

		ok, err := lim.Allow(c.Request.Context(), key)
		if err != nil {
			l.WithError(err).WithField("user_id", key).Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiError{
				Code:    utils.CodeRateLimited,
				Message: "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}
