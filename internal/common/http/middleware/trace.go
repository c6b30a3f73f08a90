// Package middleware holds gin middleware shared by the HTTP services.
package middleware

import (
	"context"
	"strings"

	"nitz/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
)

// TraceConfig controls which identifiers are accepted from the client.
type TraceConfig struct {
	// TrustUserIDHeader copies X-User-Id into the request context for logging.
	TrustUserIDHeader bool
}

// TraceContextMiddleware puts trace and request ids on the context and echoes them back.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceConfig{TrustUserIDHeader: true})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = bindID(ctx, c, traceIDHeader, string(contextkey.TraceID), contextkey.TraceID, true)
		ctx = bindID(ctx, c, requestIDHeader, string(contextkey.RequestID), contextkey.RequestID, true)
		if cfg.TrustUserIDHeader {
			ctx = bindID(ctx, c, userIDHeader, string(contextkey.UserID), contextkey.UserID, false)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// bindID reads header, generating a uuid when empty and generate is set.
func bindID(ctx context.Context, c *gin.Context, header, ginKey string, key any, generate bool) context.Context {
	id := strings.TrimSpace(c.GetHeader(header))
	if id == "" {
		if !generate {
			return ctx
		}
		id = uuid.NewString()
	}
	c.Set(ginKey, id)
	c.Writer.Header().Set(header, id)
	return context.WithValue(ctx, key, id)
}
