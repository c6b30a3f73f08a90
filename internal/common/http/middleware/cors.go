package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig lists what browser clients of the code API may do.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	ExposedHeaders   []string `yaml:"exposedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAgeSeconds    int      `yaml:"maxAgeSeconds"`
}

// Enabled reports whether any origin is allowed.
func (c CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// CORS answers preflight requests and decorates responses for allowed origins.
// Disallowed preflights get a 403; disallowed simple requests pass through undecorated.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		if strings.TrimSpace(origin) == "*" {
			wildcard = true
		}
	}
	methods := strings.Join(cfg.AllowedMethods, ",")
	headers := strings.Join(cfg.AllowedHeaders, ",")
	exposed := strings.Join(cfg.ExposedHeaders, ",")
	maxAge := ""
	if cfg.MaxAgeSeconds > 0 {
		maxAge = strconv.Itoa(cfg.MaxAgeSeconds)
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !originAllowed(origin, cfg.AllowedOrigins) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		// browsers reject "*" together with credentials
		if wildcard && !cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if methods != "" {
			h.Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if maxAge != "" {
			h.Set("Access-Control-Max-Age", maxAge)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, item := range allowed {
		item = strings.TrimSpace(item)
		if item == "*" || (item != "" && strings.EqualFold(item, origin)) {
			return true
		}
	}
	return false
}
