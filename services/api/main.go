package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/sensorthings-metadata/internal/app"
	"github.com/02loveslollipop/sensorthings-metadata/internal/logger"
	"github.com/02loveslollipop/sensorthings-metadata/services/api/config"
	httpserver "github.com/02loveslollipop/sensorthings-metadata/services/api/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logg, err := logger.Setup(cfg.Harvest.LogLevel, cfg.Harvest.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error("api server failed", "error", err)
		cancel()
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logg *slog.Logger) error {
	a, err := app.Build(ctx, cfg.Harvest, logg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := httpserver.Deps{
		Service: a.Service,
		Metrics: a.Metrics.Handler(),
		Logger:  logg,
	}
	if a.Runlog != nil {
		deps.History = a.Runlog
	}
	srv := httpserver.New(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info("REST API listening", "addr", cfg.ListenAddr(), "endpoint", cfg.Harvest.Endpoint)
		return srv.Run(gctx)
	})
	if cfg.Harvest.HarvestInterval > 0 {
		g.Go(func() error {
			logg.Info("harvest scheduler started", "interval", cfg.Harvest.HarvestInterval)
			return a.Service.Schedule(gctx, cfg.Harvest.HarvestInterval)
		})
	}
	return g.Wait()
}
