// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/gin-gonic/gin"

	"mcp-meal-snap/internal/auth"
	"mcp-meal-snap/internal/logger"
	"mcp-meal-snap/internal/service"
)

const (
	serverName        = "meal-snap"
	codeInternalError = "INTERNAL_ERROR"
	codeUnknownTool   = "UNKNOWN_TOOL"
	multipartOverhead = 1 << 20
)

type Config struct {
	Host         string
	Port         int
	Version      string
	Auth         auth.Options
	MaxImageSize int64
	// HealthCheck is called by /healthz when set.
	HealthCheck  func(ctx context.Context) error
}

type MealSnapServer struct {
	engine     *gin.Engine
	httpServer *http.Server
	service    *service.RecordService
	tools      map[string]tool
	logger     *slog.Logger
	config     *Config
}

func NewMealSnapServer(cfg *Config, svc *service.RecordService, log *slog.Logger) *MealSnapServer {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = service.DefaultMaxImageSize
	}

	s := &MealSnapServer{
		service: svc,
		logger:  log,
		config:  cfg,
	}
	s.tools = s.registerTools()

	engine := gin.New()
	engine.MaxMultipartMemory = cfg.MaxImageSize + multipartOverhead
	engine.Use(s.recovery(), s.requestLogger(), cors())
	s.routes(engine)
	s.engine = engine

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *MealSnapServer) routes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)

	authed := r.Group("/", auth.Middleware(s.config.Auth))
	authed.GET("/mcp/tools", s.handleListTools)
	authed.POST("/mcp", s.handleMCP)

	api := authed.Group("/api")
	api.POST("/meals/analyze", s.handleAnalyze)

	user := api.Group("/", auth.RequireUser())
	user.POST("/meals/log", s.handleLogMeal)
	user.POST("/meals", s.handleSaveMeal)
	user.GET("/meals", s.handleGetMeals)
	user.GET("/summary", s.handleSummary)
}

// Handler exposes the router for tests and embedding.
func (s *MealSnapServer) Handler() http.Handler {
	return s.engine
}

func (s *MealSnapServer) Start(ctx context.Context) error {
	s.logger.Info("starting meal snap server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MealSnapServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *MealSnapServer) handleHealth(c *gin.Context) {
	info := protocol.Implementation{Name: serverName, Version: s.config.Version}
	if s.config.HealthCheck != nil {
		if err := s.config.HealthCheck(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "server": info})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "server": info})
}

func (s *MealSnapServer) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic while handling request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", fmt.Sprint(recovered),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ApiResponse{
			Error: &ApiError{Code: codeInternalError, Message: "internal server error"},
		})
	})
}

func (s *MealSnapServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id, ok := auth.UserID(c); ok {
			attrs = append(attrs, "user_id", id)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", attrs...)
			return
		}
		s.logger.Info("request handled", attrs...)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
