package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vaultScope/internal/storage"
)

// Config holds the server configuration.
type Config struct {
	Debug        bool
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the read API over the vault projection.
type Server struct {
	cfg        Config
	repo       storage.Repository
	logger     *zap.Logger
	httpServer *http.Server
}

func New(cfg Config, repo storage.Repository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	return &Server{cfg: cfg, repo: repo, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(recovery(s.logger))
	router.Use(requestLogger(s.logger))

	h := &handler{repo: s.repo, logger: s.logger}
	setupRoutes(router, h)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("address", s.cfg.Listen))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("api server: %w", err)
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down api server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

func setupRoutes(router *gin.Engine, h *handler) {
	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/vaults", h.listVaults)
		v1.GET("/vaults/:address", h.getVault)
		v1.GET("/vaults/:address/shareholders", h.listShareholders)
		v1.GET("/vaults/:address/shareholders/:shareholder/transactions", h.listTransactions)
	}
}
