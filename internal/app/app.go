// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initRegistry: one client per provider, strict check
//  2. initServices: metrics registry, call logger
//  3. initResolver: resolver over the registry
//  4. initServer: HTTP routes and health checker
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/model-resolver/internal/config"
	"github.com/nulpointcorp/model-resolver/internal/logger"
	"github.com/nulpointcorp/model-resolver/internal/metrics"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
	"github.com/nulpointcorp/model-resolver/internal/server"
)

const shutdownTimeout = 10 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	reg     *resolver.Registry
	res     *resolver.Resolver
	prom    *metrics.Registry
	callLog *logger.Logger
	srv     *server.Server
	closeMu sync.Mutex
	closed  bool
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"registry", a.initRegistry},
		{"services", a.initServices},
		{"resolver", a.initResolver},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Resolver returns the application's resolver.
func (a *App) Resolver() *resolver.Resolver { return a.res }

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting resolver",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("default_provider", a.cfg.DefaultProvider),
		slog.Int("providers", a.reg.Len()),
		slog.Int("construction_errors", len(a.reg.ConstructionErrors())),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.ListenAndServe(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return
	}
	a.closed = true

	if a.callLog != nil {
		if err := a.callLog.Close(); err != nil {
			a.log.Error("call logger close error", slog.String("error", err.Error()))
		}
		if n := a.callLog.DroppedLogs(); n > 0 {
			a.log.Warn("call log entries dropped", slog.Int64("dropped", n))
		}
	}
}
