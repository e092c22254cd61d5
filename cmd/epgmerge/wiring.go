// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/epgmerge/internal/cache"
	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/history"
	"github.com/ManuGH/epgmerge/internal/jobs"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/source"
)

const cacheJanitorInterval = 10 * time.Minute

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openCache returns the payload cache selected by cfg. The closer releases
// its background resources; the pinger is non-nil for networked backends.
func openCache(cfg config.CacheSettings, logger zerolog.Logger) (cache.Cache, io.Closer, health.Pinger, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return rc, rc, rc, nil
	case config.CacheMemory:
		mc := cache.NewMemoryCache(cacheJanitorInterval)
		return mc, mc, nil, nil
	case config.CacheNone, "":
		return cache.NewNoOpCache(), closerFunc(func() error { return nil }), nil, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// openHistory opens the run history database, or a store that records
// nothing when history is disabled.
func openHistory(ctx context.Context, cfg config.AppConfig) (history.Store, error) {
	path := cfg.HistoryPath()
	if path == "" {
		return history.NewNoopStore(), nil
	}
	return history.OpenSQLite(ctx, path, cfg.History.Retain)
}

// loaderFactory builds source loaders sharing one payload cache.
func loaderFactory(c cache.Cache) jobs.LoaderFactory {
	return func(fc config.FetchSettings) jobs.SourceLoader {
		return source.NewLoader(source.NewFetcher(fc, c), fc)
	}
}

// lastRunState adapts the runner for the last-run health check.
func lastRunState(r *jobs.Runner) func() (time.Time, string) {
	return func() (time.Time, string) {
		var lastErr string
		if st := r.Last(); st != nil {
			lastErr = st.Error
		}
		return r.LastSuccess(), lastErr
	}
}

// staleAfter treats the guide as stale once three refresh intervals passed
// without a success. One-shot mode has no age limit.
func staleAfter(holder *config.Holder) func() time.Duration {
	return func() time.Duration {
		return 3 * holder.Get().Schedule.Interval
	}
}

func newHealthManager(holder *config.Holder, r *jobs.Runner, pinger health.Pinger) *health.Manager {
	hm := health.NewManager(holder.Get().Version)
	hm.RegisterChecker(health.NewLastRunChecker(lastRunState(r), staleAfter(holder)))
	hm.RegisterChecker(health.NewFileChecker("guide", func() string {
		return holder.Get().OutputPath()
	}))
	if pinger != nil {
		hm.RegisterChecker(health.NewPingChecker("cache", pinger))
	}
	return hm
}

func logCacheStats(c cache.Cache) {
	st := c.Stats()
	logger := xglog.WithComponent("cache")
	logger.Info().
		Str(xglog.FieldEvent, "cache.stats").
		Int64("hits", st.Hits).
		Int64("misses", st.Misses).
		Msg("payload cache statistics")
}
