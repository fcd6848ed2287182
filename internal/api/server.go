// Package api exposes the engine over HTTP: status, start/stop control,
// trade history and a WebSocket event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/auth"
	"paper-trading-bot/internal/bot"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/tradelog"
)

// Server is the HTTP API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         config.ServerConfig
	engine      *bot.Engine
	trades      tradelog.Recorder
	authService *auth.Service
	hub         *Hub
	loginLimit  *RateLimiter
	log         *logging.Logger
}

// NewServer wires the router, middleware and routes.
func NewServer(cfg config.ServerConfig, engine *bot.Engine, trades tradelog.Recorder, authService *auth.Service, bus *events.EventBus, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigins}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		cfg:         cfg,
		engine:      engine,
		trades:      trades,
		authService: authService,
		hub:         NewHub(bus, log),
		loginLimit:  NewRateLimiter(10, time.Minute),
		log:         log.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authService.Enabled()})
	})
	s.router.POST("/api/auth/login", s.handleLogin)

	api := s.router.Group("/api")
	api.Use(auth.Middleware(s.authService))
	{
		api.GET("/bot/status", s.handleStatus)
		api.POST("/bot/start", s.handleStart)
		api.POST("/bot/stop", s.handleStop)
		api.POST("/position/close", s.handleClosePosition)
		api.GET("/trades", s.handleTrades)
		api.GET("/signals", s.handleSignals)
		api.GET("/events", s.handleWebSocket)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the hub and the HTTP listener. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.log.Info("api server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
