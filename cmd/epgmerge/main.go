// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command epgmerge merges XMLTV feeds and scraped schedule pages into one
// guide, refreshing it on a schedule and serving it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/epgmerge/internal/api"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/history"
	"github.com/ManuGH/epgmerge/internal/jobs"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/telemetry"
	"github.com/ManuGH/epgmerge/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	once := flag.Bool("once", false, "run a single refresh and exit, ignoring schedule.interval")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// safe defaults until the config is loaded
	xglog.Configure(xglog.Config{Level: "info", Service: "epgmerge", Version: version.Version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, resolveConfigPath(*configPath), *once); err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "daemon.exit").
			Msg("epgmerge stopped with error")
		stop()
		os.Exit(1)
	}
}

// resolveConfigPath prefers -config, then ${EPGMERGE_DATA}/config.yaml when
// that file exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvDataDir, ""))
	if dataDir == "" {
		return ""
	}
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

func run(ctx context.Context, configPath string, once bool) error {
	logger := xglog.WithComponent("daemon")

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version})
	logger = xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str(xglog.FieldPath, configPath).
		Int("sources", len(cfg.Sources)).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	payloads, cacheCloser, pinger, err := openCache(cfg.Cache, xglog.WithComponent("cache"))
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() {
		logCacheStats(payloads)
		_ = cacheCloser.Close()
	}()

	store, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("run history: %w", err)
	}
	defer func() { _ = store.Close() }()

	holder := config.NewHolder(cfg, loader, configPath)
	runner := jobs.NewRunner(holder.Get, loaderFactory(payloads), store)

	if once {
		_, err := runner.Run(ctx)
		return err
	}

	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, reload disabled")
	}
	defer holder.Stop()

	return serve(ctx, holder, runner, store, pinger)
}

// serve runs the scheduler and, when enabled, the HTTP API until ctx is
// canceled or the scheduler finishes a one-shot run.
func serve(ctx context.Context, holder *config.Holder, runner *jobs.Runner, store history.Store, pinger health.Pinger) error {
	logger := xglog.WithComponent("daemon")
	cfg := holder.Get()

	g, gctx := errgroup.WithContext(ctx)

	sched := jobs.NewScheduler(runner, func() time.Duration {
		return holder.Get().Schedule.Interval
	})
	g.Go(func() error {
		err := sched.Start(gctx)
		if gctx.Err() != nil || !cfg.API.Enabled {
			return err
		}
		// one-shot schedule: the API keeps serving whatever guide exists
		if err != nil {
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "schedule.once_failed").
				Msg("refresh failed, API keeps serving the previous guide")
		}
		return nil
	})

	if cfg.API.Enabled {
		srv := api.New(api.Deps{
			Config:         holder.Get,
			Runner:         runner,
			History:        store,
			Health:         newHealthManager(holder, runner, pinger),
			Version:        cfg.Version,
			RunContext:     gctx,
			TracingService: tracingService(cfg),
		})
		g.Go(func() error {
			return srv.ListenAndServe(cfg.API.ListenAddr)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	runner.Wait()
	logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("shutdown complete")
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.LogService
}
