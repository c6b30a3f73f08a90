package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nitz/internal/judge/limiter"
	"nitz/internal/judge/model"
	"nitz/pkg/errors"
	"nitz/pkg/utils/logger"
	"nitz/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JudgeService is the coordinator behind the code API.
type JudgeService interface {
	Execute(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResponse, error)
	StarterCode(ctx context.Context, req model.StarterCodeRequest) ([]model.StarterCodeEntry, error)
	UpdateStarterCode(ctx context.Context, req model.UpdateStarterCodeRequest) error
	Languages() []model.LanguageInfo
	Status(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
	Cancel(ctx context.Context, submissionID string) error
	Stats() limiter.Stats
}

// HealthCheck checks one backing dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// JudgeController handles the code API.
type JudgeController struct {
	svc          JudgeService
	maxBodyBytes int64
	checks       []HealthCheck
	executeMW    []gin.HandlerFunc
}

// NewJudgeController creates a new controller. maxBodyBytes of zero leaves bodies unbounded.
func NewJudgeController(svc JudgeService, maxBodyBytes int64) *JudgeController {
	return &JudgeController{svc: svc, maxBodyBytes: maxBodyBytes}
}

// WithHealthChecks adds dependency checks to /healthz.
func (h *JudgeController) WithHealthChecks(checks ...HealthCheck) *JudgeController {
	h.checks = append(h.checks, checks...)
	return h
}

// WithExecuteMiddleware runs mw in front of POST /execute only.
func (h *JudgeController) WithExecuteMiddleware(mw ...gin.HandlerFunc) *JudgeController {
	h.executeMW = append(h.executeMW, mw...)
	return h
}

// RegisterRoutes mounts the code API. guard protects starter code edits.
func (h *JudgeController) RegisterRoutes(router gin.IRouter, guard gin.HandlerFunc) {
	code := router.Group("/api/code")
	execute := append([]gin.HandlerFunc{}, h.executeMW...)
	code.POST("/execute", append(execute, h.Execute)...)
	code.GET("/starter-code", h.GetStarterCode)
	if guard != nil {
		code.PUT("/starter-code", guard, h.UpdateStarterCode)
	} else {
		code.PUT("/starter-code", h.UpdateStarterCode)
	}
	code.GET("/languages", h.Languages)
	code.GET("/submissions/:id", h.GetStatus)
	code.DELETE("/submissions/:id", h.Cancel)
	router.GET("/healthz", h.Health)
}

// Execute judges user code.
func (h *JudgeController) Execute(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	var req model.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	resp, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetStarterCode returns starter code for a problem.
func (h *JudgeController) GetStarterCode(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	req := model.StarterCodeRequest{
		ProblemID: problemID,
		Context:   strings.ToLower(strings.TrimSpace(c.DefaultQuery("context", model.ContextUser))),
	}
	if raw := c.Query("userId"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "Invalid user id")
			return
		}
		req.UserID = userID
	}
	entries, err := h.svc.StarterCode(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// UpdateStarterCode edits one starter code field.
func (h *JudgeController) UpdateStarterCode(c *gin.Context) {
	var req model.UpdateStarterCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.svc.UpdateStarterCode(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"problemId": req.ProblemID, "language": req.Language, "codeType": req.CodeType})
}

// Languages lists registered runtimes.
func (h *JudgeController) Languages(c *gin.Context) {
	response.Success(c, h.svc.Languages())
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.svc.Status(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Cancel stops a running submission.
func (h *JudgeController) Cancel(c *gin.Context) {
	submissionID := c.Param("id")
	if err := h.svc.Cancel(c.Request.Context(), submissionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submissionId": submissionID, "canceled": true})
}

// Health reports limiter usage and dependency reachability.
// Any failing check turns the answer into a 503.
func (h *JudgeController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			healthy = false
			checks[check.Name] = err.Error()
			logger.Warn(ctx, "health check failed", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		checks[check.Name] = "ok"
	}
	body := gin.H{"status": "ok", "limiter": h.svc.Stats()}
	if len(checks) > 0 {
		body["checks"] = checks
	}
	if healthy {
		response.Success(c, body)
		return
	}
	body["status"] = "degraded"
	c.JSON(http.StatusServiceUnavailable, response.Response{
		Success:   false,
		Code:      errors.ServiceUnavailable,
		Message:   "dependency check failed",
		ErrorType: errors.ServiceUnavailable.Kind(),
		Data:      body,
	})
}
