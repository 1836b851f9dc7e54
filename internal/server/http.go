package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docintel/internal/service"
	"docintel/pkg/apierror"
	"docintel/pkg/health"
)

// Logger 日志接口
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Services 路由依赖的服务集合
type Services struct {
	Field      *service.FieldService
	FieldValue *service.FieldValueService
	Grid       *service.GridService
	Task       *service.TaskService
	Workspace  *service.WorkspaceService
	Workflow   *service.WorkflowService

	Health         *health.Registry
	ExtractLimiter *RateLimiter
}

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine *gin.Engine
	svc    Services
	logger Logger
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(svc Services, logger Logger) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	s := &HTTPServer{
		engine: gin.New(),
		svc:    svc,
		logger: logger,
	}

	s.registerMiddlewares()
	s.registerRoutes()

	return s
}

// Engine 暴露底层引擎给 http.Server
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// registerMiddlewares 注册中间件
func (s *HTTPServer) registerMiddlewares() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(s.corsMiddleware())
}

// requestLogger 请求日志中间件
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware CORS 中间件
func (s *HTTPServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	s.engine.GET("/health", s.healthz)

	s.engine.POST("/field", s.createField)
	s.engine.GET("/field/:id", s.getField)
	s.engine.PUT("/field/:id", s.updateField)
	s.engine.DELETE("/field/:id", s.deleteField)
	s.engine.GET("/fieldBundle/:id/fields", s.listBundleFields)

	s.engine.POST("/fieldValue", s.overrideFieldValue)
	s.engine.DELETE("/fieldValue", s.deleteFieldValue)
	s.engine.POST("/approveFieldValue", s.approveFieldValue)
	s.engine.GET("/fieldValue", s.getFieldValue)

	s.engine.POST("/extractFieldBundle/workspace/:id", s.svc.ExtractLimiter.Middleware(), s.extractFieldBundle)
	s.engine.POST("/adhocSearch/workspace/:id", s.adhocSearch)
	s.engine.POST("/gridData", s.gridData)

	s.engine.GET("/task/:id", s.getTask)

	s.engine.POST("/workspace", s.createWorkspace)
	s.engine.GET("/workspace/:id", s.getWorkspace)
	s.engine.POST("/workspace/:id/document", s.createDocument)
	s.engine.GET("/workspace/:id/documents", s.listDocuments)

	s.engine.POST("/searchCriteriaWorkflow", s.createWorkflow)
	s.engine.GET("/searchCriteriaWorkflow/workspace/:id", s.listWorkflows)
	s.engine.DELETE("/searchCriteriaWorkflow/:id", s.deleteWorkflow)
}

// healthz 依赖探活; 未注册检查器时只报告进程存活
func (s *HTTPServer) healthz(c *gin.Context) {
	if s.svc.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	results, healthy := s.svc.Health.Check(c.Request.Context())
	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}

// userID 调用方身份; 认证在外层网关完成, 这里只透传
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// respond 成功响应
func respond(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// fail 统一失败信封 {status:"fail", reason}
func (s *HTTPServer) fail(c *gin.Context, err error) {
	err = translate(err)
	status := apierror.HTTPStatus(err)
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	reason := apierror.Reason(err)
	if reason == "" {
		reason = err.Error()
	}
	c.JSON(status, gin.H{"status": "fail", "reason": reason})
}
