package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/loomkeep/loomkeep/internal/database"
	"github.com/loomkeep/loomkeep/internal/filecache"
	"github.com/loomkeep/loomkeep/internal/graph"
	"github.com/loomkeep/loomkeep/internal/logging"
	"github.com/loomkeep/loomkeep/internal/maintenance"
	"github.com/loomkeep/loomkeep/internal/ratelimit"
	"github.com/loomkeep/loomkeep/internal/store"
	"github.com/loomkeep/loomkeep/pkg/config"
)

// Server represents the REST API server.
type Server struct {
	router     *gin.Engine
	config     *config.Config
	store      *store.Store
	graph      *graph.Graph
	maintainer *maintenance.Maintainer
	filecache  *filecache.Cache
	httpServer *http.Server
	log        *logging.Logger

	rateLimiter *ratelimit.Limiter
}

// NewServer creates a new REST API server.
func NewServer(db *database.DB, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		corsConfig := cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders: []string{"Content-Length", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}

		switch {
		case len(cfg.RestAPI.AllowOrigins) > 0:
			corsConfig.AllowOrigins = cfg.RestAPI.AllowOrigins
		case cfg.RestAPI.APIKey != "":
			corsConfig.AllowOrigins = []string{
				"http://localhost:*",
				"http://127.0.0.1:*",
				"https://localhost:*",
				"https://127.0.0.1:*",
			}
			corsConfig.AllowWildcard = true
		default:
			corsConfig.AllowAllOrigins = true
		}

		router.Use(cors.New(corsConfig))
	}

	if cfg.RestAPI.APIKey != "" {
		log.Info("API key authentication enabled")
		router.Use(APIKeyAuthMiddleware(cfg.RestAPI.APIKey))
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		log.Info("rate limiting enabled")
		limiter = ratelimit.NewLimiter(&cfg.RateLimit)
		router.Use(RateLimitMiddleware(limiter))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	st := store.New(db)
	gr := graph.New(db)

	server := &Server{
		router:      router,
		config:      cfg,
		store:       st,
		graph:       gr,
		maintainer:  maintenance.New(db, cfg.Memory.MaxMemories),
		filecache:   filecache.New(st, gr),
		log:         log,
		rateLimiter: limiter,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	apiGroup := s.router.Group("/api/v1")
	{
		apiGroup.GET("/health", s.healthHandler)

		apiGroup.POST("/memories", s.createMemory)
		apiGroup.GET("/memories", s.listMemories)
		apiGroup.GET("/memories/search", s.searchMemories)
		apiGroup.GET("/memories/stats", s.memoryStats)
		apiGroup.GET("/memories/:id", s.getMemory)
		apiGroup.PUT("/memories/:id", s.updateMemory)
		apiGroup.DELETE("/memories/:id", s.deleteMemory)
		apiGroup.POST("/memories/:id/refresh", s.refreshMemory)

		apiGroup.GET("/memories/:id/tags", s.listMemoryTags)
		apiGroup.POST("/memories/:id/tags", s.addMemoryTags)
		apiGroup.DELETE("/memories/:id/tags", s.removeMemoryTags)
		apiGroup.GET("/tags", s.listAllTags)
		apiGroup.GET("/tags/:tag", s.searchByTag)

		apiGroup.GET("/memories/:id/links", s.listLinks)
		apiGroup.POST("/links", s.createLink)
		apiGroup.DELETE("/links", s.removeLink)

		apiGroup.POST("/maintenance/cleanup", s.runCleanup)

		apiGroup.GET("/export", s.exportMemories)
		apiGroup.POST("/import", s.importMemories)

		apiGroup.GET("/files/check", s.checkFile)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.listenAndServe()
}

// StartWithContext starts the HTTP server with graceful shutdown support.
// It blocks until the context is cancelled or the server encounters an error.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	addr, err := s.resolveAddr()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) listenAndServe() error {
	addr, err := s.resolveAddr()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) resolveAddr() (string, error) {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return "", fmt.Errorf("failed to find available port: %w", err)
		}
		port = availablePort
		s.log.Debug("found available port", "port", port)
	}
	return fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port), nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
			return err
		}
		s.log.Info("REST API server stopped")
	}
	return nil
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// findAvailablePort finds an available port starting from the given port.
func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
