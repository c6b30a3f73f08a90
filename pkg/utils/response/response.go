package response

import (
	"net/http"
	"strconv"

	"nitz/pkg/errors"
	"nitz/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope every code API answer is wrapped in.
// Successful calls carry Data; failures carry Code, ErrorType and Message.
type Response struct {
	Success   bool             `json:"success"`
	Code      errors.ErrorCode `json:"code"`
	Message   string           `json:"message,omitempty"`
	ErrorType errors.Kind      `json:"errorType,omitempty"`
	Data      any              `json:"data,omitempty"`
	Details   any              `json:"details,omitempty"`
	TraceID   string           `json:"trace_id,omitempty"`
}

// retryAfterSeconds is advertised on overload responses.
const retryAfterSeconds = 1

// Success sends a successful response with data
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Code:    errors.Success,
		Data:    data,
		TraceID: getTraceID(c),
	})
}

// Error sends an error response
// It automatically extracts error code and message from the error
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)
	status := customErr.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(customErr.Code)),
		zap.String("kind", string(customErr.Code.Kind())),
		zap.String("message", customErr.Error()),
	}
	if len(customErr.Details) > 0 {
		fields = append(fields, zap.Any("details", customErr.Details))
	}
	if status >= http.StatusInternalServerError {
		fields = append(fields, zap.String("stack", customErr.Stack))
		if customErr.Err != nil {
			fields = append(fields, zap.Error(customErr.Err))
		}
		logger.Error(c.Request.Context(), "request error", fields...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	if customErr.Code.Kind() == errors.KindOverloaded {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	resp := Response{
		Success:   false,
		Code:      customErr.Code,
		Message:   customErr.Error(),
		ErrorType: customErr.Code.Kind(),
		TraceID:   getTraceID(c),
	}
	if len(customErr.Details) > 0 {
		resp.Details = customErr.Details
	}
	c.JSON(status, resp)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}
	Error(c, errors.New(code).WithMessage(message))
}

// BadRequest sends a 400 bad request error
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

// AbortWithError aborts the request and sends error response
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// AbortWithErrorCode aborts the request with error code
func AbortWithErrorCode(c *gin.Context, code errors.ErrorCode, message string) {
	ErrorWithCode(c, code, message)
	c.Abort()
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
