package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nulpointcorp/model-resolver/internal/logger"
	"github.com/nulpointcorp/model-resolver/internal/metrics"
	"github.com/nulpointcorp/model-resolver/internal/resolver"
	"github.com/nulpointcorp/model-resolver/internal/server"
)

// initRegistry builds one client per provider. Construction failures are
// logged and isolated unless PROVIDERS_STRICT is set.
func (a *App) initRegistry(_ context.Context) error {
	a.reg = resolver.BuildRegistry(a.cfg, a.log)

	if err := a.reg.Err(); err != nil {
		if a.cfg.StrictProviders {
			return fmt.Errorf("providers: %w", err)
		}
		a.log.Warn("some providers are unavailable", slog.String("error", err.Error()))
	}

	ids := make([]string, 0, a.reg.Len())
	for _, id := range a.reg.IDs() {
		ids = append(ids, id.String())
	}
	a.log.Info("providers registered", slog.Any("providers", ids))

	return nil
}

// initServices creates the Prometheus registry and the async call logger.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)
	for _, cerr := range a.reg.ConstructionErrors() {
		a.prom.SetConstructionFailed(cerr.Provider.String())
	}

	l, err := logger.New(ctx, a.log)
	if err != nil {
		return err
	}
	a.callLog = l

	return nil
}

func (a *App) initResolver(_ context.Context) error {
	a.res = resolver.New(a.reg, a.cfg,
		resolver.WithLogger(a.log),
		resolver.WithObserver(a.prom),
	)

	for _, d := range a.res.Defaults() {
		a.log.Debug("task default",
			slog.String("task", string(d.Task)),
			slog.String("provider", d.Provider),
			slog.String("model", d.EffectiveModel),
		)
	}

	return nil
}

func (a *App) initServer(_ context.Context) error {
	a.srv = server.New(a.baseCtx, a.res, server.Options{
		Logger:              a.log,
		Metrics:             a.prom,
		CallLog:             a.callLog,
		CORSOrigins:         a.cfg.CORSOrigins,
		ProviderTimeout:     a.cfg.ProviderTimeout,
		HealthCheckInterval: a.cfg.HealthCheckInterval,
	})
	return nil
}
