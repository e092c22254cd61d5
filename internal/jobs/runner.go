// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/history"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/merge"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/telemetry"
)

// Runner executes refreshes. At most one run is active at a time.
type Runner struct {
	config  func() config.AppConfig
	factory LoaderFactory
	history history.Store
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string

	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.Mutex
	fetchCfg    config.FetchSettings
	loader      SourceLoader
	last        *Status
	lastSuccess time.Time
}

// NewRunner returns a runner that reads a fresh config snapshot for every
// run. A nil store disables run history.
func NewRunner(cfg func() config.AppConfig, factory LoaderFactory, store history.Store) *Runner {
	if store == nil {
		store = history.NewNoopStore()
	}
	return &Runner{
		config:  cfg,
		factory: factory,
		history: store,
		logger:  xglog.WithComponent("jobs"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Run performs one refresh and waits for it.
func (r *Runner) Run(ctx context.Context) (*Status, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx, r.newID())
}

// Trigger starts a refresh in the background and returns its run id.
// Use Wait to block until background runs have finished.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	id := r.newID()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		_, _ = r.run(ctx, id)
	}()
	return id, nil
}

// Wait blocks until every triggered run has returned.
func (r *Runner) Wait() { r.wg.Wait() }

// Running reports whether a refresh is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Last returns a copy of the most recent run status, or nil before the first run.
func (r *Runner) Last() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	cp.Sources = append([]SourceStatus(nil), r.last.Sources...)
	return &cp
}

// LastSuccess is the finish time of the last run that wrote a guide from at
// least one source. Zero until then.
func (r *Runner) LastSuccess() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSuccess
}

func (r *Runner) run(ctx context.Context, id string) (*Status, error) {
	cfg := r.config()
	ctx = xglog.ContextWithJobID(ctx, id)
	ctx, span := telemetry.Tracer().Start(ctx, "run")
	span.SetAttributes(attribute.String(telemetry.RunIDKey, id))
	defer span.End()

	logger := xglog.WithContext(ctx, r.logger)
	logger.Info().
		Str(xglog.FieldEvent, "run.start").
		Int("sources", len(cfg.Sources)).
		Msg("refresh started")

	status := &Status{
		RunID:      id,
		StartedAt:  r.now(),
		OutputPath: cfg.OutputPath(),
	}
	err := r.execute(ctx, cfg, status)
	status.FinishedAt = r.now()
	status.DurationMS = status.FinishedAt.Sub(status.StartedAt).Milliseconds()
	if err != nil {
		status.Outcome = OutcomeFailed
		status.Error = err.Error()
		telemetry.RecordError(span, err, "run")
	}
	span.SetAttributes(attribute.String(telemetry.RunOutcomeKey, status.Outcome))
	metrics.IncRun(status.Outcome)
	r.record(ctx, status)

	r.mu.Lock()
	r.last = status
	if err == nil {
		r.lastSuccess = status.FinishedAt
	}
	r.mu.Unlock()

	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "run.failed").
			Int("sources_failed", status.SourcesFailed()).
			Str("warning", status.Warning).
			Int64("duration_ms", status.DurationMS).
			Msg("refresh failed")
		return status, err
	}
	logger.Info().
		Str(xglog.FieldEvent, "run.success").
		Str("outcome", status.Outcome).
		Int(xglog.FieldChannels, status.Channels).
		Int(xglog.FieldProgrammes, status.Programmes).
		Int("sources_failed", status.SourcesFailed()).
		Int64("duration_ms", status.DurationMS).
		Msg("refresh completed")
	return status, nil
}

func (r *Runner) execute(ctx context.Context, cfg config.AppConfig, status *Status) error {
	canon, err := cfg.Canonical.Canonicalizer()
	if err != nil {
		return fmt.Errorf("canonical rules: %w", err)
	}

	inputs := r.loaderFor(cfg.Fetch).LoadAll(ctx, cfg)

	_, span := telemetry.Tracer().Start(ctx, "merge")
	mergeLogger := xglog.WithContext(ctx, xglog.WithComponent("merge"))
	res := merge.Merge(inputs, merge.Options{Canon: canon, Logger: &mergeLogger})
	span.SetAttributes(telemetry.MergeAttributes(len(res.Channels), len(res.Programmes), len(res.Sources))...)
	span.End()

	for _, st := range res.Sources {
		status.Sources = append(status.Sources, sourceStatus(st))
		metrics.AddMergeSkips(st.Name, "vod", st.VODFiltered)
		metrics.AddMergeSkips(st.Name, "orphan", st.Orphans)
		metrics.AddMergeSkips(st.Name, "duplicate", st.Duplicates)
		metrics.AddMergeSkips(st.Name, "malformed_time", st.MalformedTimes)
	}
	status.Channels = len(res.Channels)
	status.Programmes = len(res.Programmes)

	allFailed := status.SourcesFailed() == len(status.Sources)
	if allFailed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !cfg.Output.WriteEmpty {
			status.Warning = "all sources failed; previous guide kept"
			return ErrNoSources
		}
		status.Warning = "all sources failed; wrote an empty guide"
	}

	path := cfg.OutputPath()
	if err := writeGuide(ctx, path, buildTV(res, cfg.Output.Generator), cfg.Output.Indent); err != nil {
		return err
	}
	status.Written = true
	metrics.RecordGuideWritten(status.Channels, status.Programmes, r.now())
	logger := xglog.WithContext(ctx, r.logger)
	logger.Info().
		Str(xglog.FieldEvent, "output.write").
		Str(xglog.FieldPath, path).
		Int(xglog.FieldChannels, status.Channels).
		Int(xglog.FieldProgrammes, status.Programmes).
		Msg("guide written")

	switch {
	case allFailed:
		return ErrNoSources
	case status.SourcesFailed() > 0:
		status.Outcome = OutcomePartial
	default:
		status.Outcome = OutcomeSuccess
	}
	return nil
}

// loaderFor reuses the loader while the fetch settings are unchanged so
// breaker state and the payload cache survive between runs.
func (r *Runner) loaderFor(fc config.FetchSettings) SourceLoader {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loader == nil || r.fetchCfg != fc {
		r.loader = r.factory(fc)
		r.fetchCfg = fc
	}
	return r.loader
}

func (r *Runner) record(ctx context.Context, status *Status) {
	run := history.Run{
		ID:            status.RunID,
		StartedAt:     status.StartedAt,
		FinishedAt:    status.FinishedAt,
		Outcome:       status.Outcome,
		Channels:      status.Channels,
		Programmes:    status.Programmes,
		SourcesOK:     len(status.Sources) - status.SourcesFailed(),
		SourcesFailed: status.SourcesFailed(),
		Error:         status.Error,
	}
	// a canceled run is still recorded
	if err := r.history.Record(context.WithoutCancel(ctx), run); err != nil && !errors.Is(err, history.ErrDisabled) {
		logger := xglog.WithContext(ctx, r.logger)
		logger.Warn().Err(err).Msg("record run history")
	}
}
