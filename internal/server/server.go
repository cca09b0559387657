package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/version"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *config.Config
	svc    *Services
	server *http.Server

	ready    chan struct{}
	addr     string
	stopOnce sync.Once
	stopErr  error
}

func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	svc, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	handler := SetupRoutes(svc, RouteConfig{Token: cfg.HTTP.Token})

	return &Server{
		config: cfg,
		svc:    svc,
		ready:  make(chan struct{}),
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

func (s *Server) Services() *Services {
	return s.svc
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listen address. Valid after Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// Start runs the daemon until ctx is cancelled or a component fails.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("padsync server start", "version", version.Short(), "dataDir", s.config.DataDir)
	defer slog.Info("padsync server stop")

	if err := s.svc.Start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.config.HTTP.Addr)
	if err != nil {
		s.svc.Shutdown(context.Background())
		return fmt.Errorf("listen %s: %w", s.config.HTTP.Addr, err)
	}
	s.addr = ln.Addr().String()
	close(s.ready)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.svc.Hub.Run(egCtx, s.svc.Watcher.Events())
		return nil
	})

	if s.svc.Versioning != nil {
		eg.Go(func() error {
			return s.svc.Versioning.Run(egCtx)
		})
	}

	eg.Go(func() error {
		slog.Info("http server start", "addr", s.addr)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		return s.Stop()
	})

	return eg.Wait()
}

// Stop shuts the HTTP server down, then disconnects every session so pending edits are
// flushed, then releases the data directory. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			slog.Error("http server shutdown", "error", err)
			s.stopErr = err
		}
		if err := s.svc.Shutdown(ctx); err != nil {
			slog.Error("services shutdown", "error", err)
			s.stopErr = errors.Join(s.stopErr, err)
		}
	})
	return s.stopErr
}
