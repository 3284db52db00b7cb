// Package api exposes the HTTP surface consumed by the dashboard:
// scan triggers, status, history and cache management.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/crossarr/crossarr/internal/cache"
	"github.com/crossarr/crossarr/internal/config"
	"github.com/crossarr/crossarr/internal/crossseed"
	"github.com/crossarr/crossarr/internal/store"
	"github.com/crossarr/crossarr/internal/websocket"
)

// Server handles HTTP requests for the crossarr API.
type Server struct {
	echo      *echo.Echo
	store     *store.Store
	cache     *cache.Cache
	scheduler *crossseed.Service
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
}

// NewServer creates a new API server instance.
func NewServer(st *store.Store, ca *cache.Cache, scheduler *crossseed.Service,
	hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		store:     st,
		cache:     ca,
		scheduler: scheduler,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	instances := api.Group("/instances/:id")
	instances.POST("/scan", s.triggerScan)
	instances.DELETE("/scan", s.stopScan)
	instances.GET("/searchees", s.listSearchees)
	instances.GET("/cache", s.getCacheStats)
	instances.DELETE("/cache", s.clearCache)

	api.GET("/searchees/:id/decisions", s.listDecisions)
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	return s.echo.Start(s.cfg.Server.Address())
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
