package middleware

import (
	"context"
	"fmt"
	"time"

	"nitz/internal/common/cache"
	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/logger"
	"nitz/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rateKeyPrefix = "judge:rate"

// RateLimitConfig caps executions per client inside a fixed window.
// Zero maximums disable the matching check.
type RateLimitConfig struct {
	Window  time.Duration `yaml:"window"`
	IPMax   int           `yaml:"ipMax" env:"JUDGE_RATE_IP_MAX"`
	UserMax int           `yaml:"userMax" env:"JUDGE_RATE_USER_MAX"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.IPMax > 0 || c.UserMax > 0
}

// RateLimiter enforces RateLimitConfig on top of a shared counter.
type RateLimiter struct {
	counter cache.Counter
	cfg     RateLimitConfig
}

// NewRateLimiter returns nil when cfg sets no limit.
func NewRateLimiter(counter cache.Counter, cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled() || counter == nil {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 200 * time.Millisecond
	}
	return &RateLimiter{counter: counter, cfg: cfg}
}

// Allow counts one request for key and rejects it once max is exceeded.
// Counter failures let the request through.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int) error {
	if max <= 0 {
		return nil
	}
	ctxCache, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	count, err := l.counter.IncrWindow(ctxCache, key, l.cfg.Window)
	if err != nil {
		logger.Warn(ctx, "rate limit check failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if count > int64(max) {
		return appErr.New(appErr.TooManyRequests).WithMessagef("rate limit exceeded, at most %d executions per %s", max, l.cfg.Window)
	}
	return nil
}

// RateLimit throttles route per client IP and per user id.
// The user id comes from the context set by the trace middleware.
func RateLimit(limiter *RateLimiter, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:ip:%s:%s", rateKeyPrefix, c.ClientIP(), route)
		if err := limiter.Allow(ctx, key, limiter.cfg.IPMax); err != nil {
			response.AbortWithError(c, err)
			return
		}
		if userID, ok := c.Get("user_id"); ok {
			key = fmt.Sprintf("%s:user:%v:%s", rateKeyPrefix, userID, route)
			if err := limiter.Allow(ctx, key, limiter.cfg.UserMax); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
