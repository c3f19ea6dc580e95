package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"futsal_notifier/internal/config"
	"futsal_notifier/internal/jobs"
	"futsal_notifier/internal/middleware"
	"futsal_notifier/internal/notification"
	"futsal_notifier/internal/realtime"
	"futsal_notifier/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server struct holds the dependencies for the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger

	sessionService session.Service
	liveSession    *realtime.Session

	// Jobs
	pollingJob *jobs.PollingJob
}

// NewServer creates a new instance of the agent's local API.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	sessionHandler *session.Handler,
	sessionService session.Service,
	notificationHandler *notification.Handler,
	realtimeHandler *realtime.Handler,
	liveSession *realtime.Session,
	pollingJob *jobs.PollingJob,
) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// --- Global Middleware ---
	router.Use(middleware.ZapLogger(logger, cfg))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	sessionMW := middleware.SessionRequired(liveSession, logger.Named("SessionMiddleware"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"channel": liveSession.Status(),
		})
	})

	v1 := router.Group("/api/v1")
	sessionHandler.RegisterRoutes(v1)
	notificationHandler.RegisterRoutes(v1.Group("/notifications", sessionMW))
	realtimeHandler.RegisterRoutes(v1, sessionMW, middleware.StaffOnly())

	timeout := cfg.ServerTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:     httpServer,
		router:         router,
		cfg:            cfg,
		logger:         logger,
		sessionService: sessionService,
		liveSession:    liveSession,
		pollingJob:     pollingJob,
	}, nil
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) Start() error {
	if state, err := s.sessionService.Restore(context.Background()); err != nil {
		s.logger.Warn("Could not restore previous session", zap.Error(err))
	} else if state.Bound {
		s.logger.Info("Previous session restored", zap.String("user_id", state.UserID))
	}

	if s.pollingJob != nil {
		if err := s.pollingJob.SetupAndStart(); err != nil {
			s.logger.Error("Failed to setup and start polling job", zap.Error(err))
		}
	} else {
		s.logger.Info("Polling job is not configured, skipping start.")
	}

	s.logger.Info("HTTP Server starting",
		zap.String("address", s.httpServer.Addr),
		zap.String("gin_mode", s.cfg.GinMode),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Failed to start HTTP server", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP Server stopped")
	return nil
}

// Shutdown stops polling, closes the push channel and drains HTTP.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Attempting graceful server shutdown...")
	if s.pollingJob != nil {
		s.pollingJob.Stop()
	}
	s.liveSession.Bind(realtime.Credentials{})
	s.liveSession.Close()
	return s.httpServer.Shutdown(ctx)
}
