package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/compozy/blockgate/engine/infra/monitoring"
	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	httpIdleTimeout          = 60 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
	monitoringShutdownBudget = 5 * time.Second
)

type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	monitoring *monitoring.Service
	httpServer *http.Server
	cleanups   []func()
}

// NewServer reads its configuration from ctx.
func NewServer(ctx context.Context) *Server {
	return &Server{cfg: config.FromContext(ctx)}
}

// Run builds every dependency, serves HTTP until ctx is canceled and then
// drains in-flight work before releasing connections.
func (s *Server) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)
	state, err := s.setupDependencies(ctx)
	defer s.cleanup(ctx)
	if err != nil {
		return err
	}
	if err := s.buildRouter(ctx, state); err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	s.httpServer = s.createHTTPServer(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", "address", "http://"+s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Debug("Received shutdown signal, initiating graceful shutdown")
		return s.shutdown(context.WithoutCancel(ctx))
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server shutdown completed successfully")
	return nil
}

func (s *Server) createHTTPServer(ctx context.Context) *http.Server {
	sc := s.cfg.Server
	return &http.Server{
		Addr:              net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Handler:           s.router,
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       httpIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) addCleanup(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

// cleanup runs registered cleanups in reverse order.
func (s *Server) cleanup(ctx context.Context) {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil
	logger.FromContext(ctx).Debug("Server resources released")
}
