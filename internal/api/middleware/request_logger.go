package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	CtxRequestID = "request_id"

	maxRequestIDLen = 128
)

// RequestLogger tags every request with an id and writes one structured line
// when it finishes. Live sockets are logged when they close.
func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set(CtxRequestID, reqID)

		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		}
		if u := c.GetString(CtxUserID); u != "" {
			fields["user_id"] = u
		}
		if sid := c.Param("session_id"); sid != "" {
			fields["session_id"] = sid
		}
		entry := l.WithFields(fields)
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		msg := "request"
		if isWebSocketUpgrade(c) {
			msg = "live socket closed"
		}
		switch {
		case status >= 500:
			entry.Error(msg)
		case status >= 400:
			entry.Warn(msg)
		case c.FullPath() == "/ping":
			entry.Debug(msg)
		default:
			entry.Info(msg)
		}
	}
}
