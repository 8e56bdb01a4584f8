// Package http serves the WorkenAI REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Noctocode/worken-ai/internal/chat"
	"github.com/Noctocode/worken-ai/internal/conversations"
	"github.com/Noctocode/worken-ai/internal/documents"
	"github.com/Noctocode/worken-ai/internal/logging"
	"github.com/Noctocode/worken-ai/internal/projects"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/teams"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

// Services are the domain services behind the routes. Users is optional and
// refreshes the paid flag of authenticated principals. Index is optional and
// probed by /health.
type Services struct {
	Projects      *projects.Service
	Documents     *documents.Service
	Conversations *conversations.Service
	Chat          *chat.Service
	Evaluator     *chat.Evaluator
	Teams         *teams.Service
	Users         store.Users
	Index         vectorstore.Store
}

// Server provides HTTP endpoints for the workspace API.
type Server struct {
	echo    *echo.Echo
	svc     Services
	users   store.Users
	limiter *principalLimiter
	logger  *logging.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	JWTSecret string
	// RateLimitRPS of zero disables the per-principal limiter.
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadMB    int
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil || cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()

	s := &Server{
		echo:   e,
		svc:    svc,
		users:  svc.Users,
		logger: logger,
		config: cfg,
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newPrincipalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	e.HTTPErrorHandler = s.handleError

	metrics, err := newRequestMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("creating http metrics: %w", err)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(metrics.middleware())

	s.registerRoutes()

	return s, nil
}

// requestLogger carries the request id in the context and logs every request.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public invitation preview; accepting requires a session.
	s.echo.GET("/api/v1/teams/invite/:token", s.handleGetInvite)

	v1 := s.echo.Group("/api/v1", s.authMiddleware(), s.rateLimitMiddleware())

	v1.GET("/projects", s.handleListProjects)
	v1.GET("/projects/:id", s.handleGetProject)
	v1.POST("/projects", s.handleCreateProject)

	upload := middleware.BodyLimit(fmt.Sprintf("%dM", s.config.MaxUploadMB+1))
	v1.POST("/projects/:projectId/documents", s.handleCreateDocument)
	v1.POST("/projects/:projectId/documents/upload", s.handleUploadDocument, upload)
	v1.GET("/projects/:projectId/documents", s.handleListDocuments)
	v1.GET("/projects/:projectId/documents/groups", s.handleListGroups)
	v1.DELETE("/projects/:projectId/documents/groups/:groupId", s.handleDeleteGroup)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.POST("/projects/:projectId/search", s.handleSearch)

	v1.GET("/projects/:projectId/conversations", s.handleListConversations)
	v1.POST("/projects/:projectId/conversations", s.handleCreateConversation)
	v1.GET("/conversations/:id", s.handleGetConversation)
	v1.DELETE("/conversations/:id", s.handleDeleteConversation)

	v1.POST("/chat", s.handleChat)
	v1.POST("/compare-models", s.handleCompareModels)

	v1.GET("/teams", s.handleListTeams)
	v1.POST("/teams", s.handleCreateTeam)
	v1.POST("/teams/invite/:token/accept", s.handleAcceptInvite)
	v1.GET("/teams/:id", s.handleGetTeam)
	v1.PATCH("/teams/:id/budget", s.handleUpdateBudget)
	v1.POST("/teams/:id/members", s.handleInviteMember)
	v1.PATCH("/teams/:id/members/:memberId", s.handleUpdateMemberRole)
	v1.DELETE("/teams/:id/members/:memberId", s.handleRemoveMember)
}

// handleHealth reports liveness and, when an index is wired, its reachability.
func (s *Server) handleHealth(c echo.Context) error {
	if s.svc.Index == nil {
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
	}
	ctx := c.Request().Context()
	if err := vectorstore.Ping(ctx, s.svc.Index); err != nil {
		s.logger.Warn(ctx, "health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			Checks: map[string]string{"vectorstore": "unreachable"},
		})
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: map[string]string{"vectorstore": "ok"},
	})
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
