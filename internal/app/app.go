// Package app wires configuration into a harvest service and its publishers.
// Both binaries build their dependencies through Build.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"

	"github.com/02loveslollipop/sensorthings-metadata/internal/config"
	"github.com/02loveslollipop/sensorthings-metadata/internal/db"
	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/lock"
	"github.com/02loveslollipop/sensorthings-metadata/internal/metrics"
	"github.com/02loveslollipop/sensorthings-metadata/internal/output"
	"github.com/02loveslollipop/sensorthings-metadata/internal/reconcile"
	"github.com/02loveslollipop/sensorthings-metadata/internal/runlog"
	"github.com/02loveslollipop/sensorthings-metadata/internal/sta"
)

const (
	lockKey = "sta-harvester:lock"
	lockTTL = 10 * time.Minute
)

// App holds the wired service and the optional sinks callers may need
// directly. Runlog is nil when run history is disabled.
type App struct {
	Service *harvest.Service
	Metrics *metrics.Metrics
	Runlog  *runlog.Store

	closers []func()
}

// Build creates the entity client, state store, lock and every configured
// publisher. The caller must Close the returned App.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	rc := resty.New().SetLogger(restyLogger{log})
	if err := sta.Authorize(rc, cfg.Endpoint, cfg.Credentials()); err != nil {
		return nil, fmt.Errorf("configure upstream auth: %w", err)
	}
	client := sta.New(rc, cfg.STAOptions())

	a := &App{Metrics: metrics.New()}
	publishers := []harvest.Publisher{a.Metrics}

	files := output.Files{Records: cfg.MetadataOutput, STAC: cfg.STACOutput, DCAT: cfg.DCATOutput}
	if files.Enabled() {
		publishers = append(publishers, files)
	}

	if cfg.RunlogPath != "" {
		store, err := runlog.Open(cfg.RunlogPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Runlog = store
		a.closers = append(a.closers, func() { _ = store.Close() })
		publishers = append(publishers, store)
	}

	if cfg.InfluxURL != "" {
		influx := metrics.NewInflux(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		a.closers = append(a.closers, influx.Close)
		publishers = append(publishers, influx)
	}

	if cfg.DatabaseURL != "" {
		mirror, err := db.NewMirror(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, mirror.Close)
		publishers = append(publishers, mirror)
	}

	locker, err := a.locker(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := harvest.Options{
		STAC:        cfg.STACOptions(),
		Incremental: cfg.Incremental,
		Interval:    cfg.HarvestInterval,
		Locker:      locker,
		Publishers:  publishers,
		Logger:      log,
	}
	if cfg.Incremental {
		opts.Store = reconcile.NewFileStore(cfg.StateFile, log)
	}

	svc, err := harvest.New(client, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) locker(ctx context.Context, cfg config.Config, log *slog.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	log.Info("using redis harvest lock", "addr", cfg.RedisAddr)
	return lock.NewRedis(rdb, lockKey, lockTTL, log), nil
}

// Close releases every sink in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// restyLogger routes resty's internal messages through slog.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
