package middleware

import (
	"fmt"
	"net/http"
	"time"

	"nitz/pkg/errors"
	"nitz/pkg/utils/logger"
	"nitz/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(c.Request.Context(), "request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn(c.Request.Context(), "request completed", fields...)
		default:
			logger.Info(c.Request.Context(), "request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into an InternalFault response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "handler panic", zap.Any("panic", recovered), zap.Stack("stack"))
		response.AbortWithError(c, errors.InternalError(fmt.Errorf("panic: %v", recovered)))
	})
}
