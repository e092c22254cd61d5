// SPDX-License-Identifier: MIT

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/epgmerge/internal/config"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/merge"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/telemetry"
)

// ErrSourceUnavailable wraps every per-source load failure.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fetch outcomes used in metrics labels.
const (
	outcomeSuccess     = "success"
	outcomeFetchError  = "fetch_error"
	outcomeDecodeError = "decode_error"
)

// Loader fetches and parses the configured sources.
type Loader struct {
	fetcher  *Fetcher
	logger   zerolog.Logger
	now      func() time.Time
	maxBytes int64
	parallel int
}

// NewLoader returns a loader that fetches with f and runs at most
// cfg.MaxConcurrency loads at once.
func NewLoader(f *Fetcher, cfg config.FetchSettings) *Loader {
	return &Loader{
		fetcher:  f,
		logger:   xglog.WithComponent("source"),
		now:      time.Now,
		maxBytes: cfg.MaxBytes,
		parallel: max(cfg.MaxConcurrency, 1),
	}
}

// LoadAll loads every source of cfg concurrently. The result has one Input
// per source in configured order, whatever order the loads finish in; a
// failed source carries an error wrapping ErrSourceUnavailable.
func (l *Loader) LoadAll(ctx context.Context, cfg config.AppConfig) []merge.Input {
	inputs := make([]merge.Input, len(cfg.Sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, sc := range cfg.Sources {
		g.Go(func() error {
			src, err := l.Load(gctx, sc, cfg.CanonicalFor(sc))
			inputs[i] = merge.Input{Name: sc.Name, Source: src, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return inputs
}

// Load fetches and parses a single source.
func (l *Loader) Load(ctx context.Context, sc config.SourceConfig, rules config.CanonicalRules) (*merge.Source, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "source.load")
	span.SetAttributes(telemetry.SourceAttributes(sc.Name, sc.Kind, sc.URL)...)
	defer span.End()

	logger := xglog.WithContext(ctx, l.logger).With().
		Str(xglog.FieldSource, sc.Name).
		Str(xglog.FieldSourceKind, sc.Kind).
		Logger()

	started := l.now()
	src, outcome, err := l.load(ctx, sc, rules)
	metrics.RecordSourceFetch(sc.Name, outcome, l.now().Sub(started))
	if err != nil {
		telemetry.RecordError(span, err, outcome)
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, sc.Name, err)
	}

	metrics.RecordSourceRecords(sc.Name, len(src.Channels), len(src.Programmes))
	span.SetAttributes(
		attribute.Int(telemetry.SourceChannelsKey, len(src.Channels)),
		attribute.Int(telemetry.SourceProgrammesKey, len(src.Programmes)),
	)
	logger.Info().
		Str(xglog.FieldEvent, "source.fetch").
		Int(xglog.FieldChannels, len(src.Channels)).
		Int(xglog.FieldProgrammes, len(src.Programmes)).
		Dur("duration", l.now().Sub(started)).
		Msg("source loaded")
	return src, nil
}

func (l *Loader) load(ctx context.Context, sc config.SourceConfig, rules config.CanonicalRules) (*merge.Source, string, error) {
	payload, err := l.fetcher.Fetch(ctx, sc.URL)
	if err != nil {
		return nil, outcomeFetchError, err
	}
	data, err := Decompress(payload.Data, sc.Compression, l.maxBytes)
	if err != nil {
		return nil, outcomeDecodeError, err
	}

	ref := payload.FetchedAt.In(sc.Location())
	var src *merge.Source
	switch sc.Kind {
	case config.KindHTML:
		src, err = Scrape(bytes.NewReader(data), payload.ContentType, sc.HTML, sc.Channel, ref)
	case config.KindXMLTV, "":
		src, err = ParseXMLTV(bytes.NewReader(data))
		if err == nil {
			src.Reference = ref
		}
	default:
		err = fmt.Errorf("unknown source kind %q", sc.Kind)
	}
	if err != nil {
		return nil, outcomeDecodeError, err
	}

	src.Name = sc.Name
	src.Rollover = sc.Rollover()
	if pattern := sc.VODPattern(); pattern != "" {
		if src.VODExclude, err = regexp.Compile(pattern); err != nil {
			return nil, outcomeDecodeError, fmt.Errorf("vod pattern: %w", err)
		}
	}
	if sc.Canonical != nil {
		if src.Canon, err = rules.Canonicalizer(); err != nil {
			return nil, outcomeDecodeError, fmt.Errorf("canonical rules: %w", err)
		}
	}
	return src, outcomeSuccess, nil
}
