// SPDX-License-Identifier: MIT
package merge

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/epgmerge/internal/epg"
	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// State is the lifecycle state of an Engine.
type State int

const (
	// StateProcessing accepts sources.
	StateProcessing State = iota
	// StateDone is terminal; the result is final.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	// ErrFinalized is returned when a finished engine is fed more sources.
	ErrFinalized = errors.New("merge: engine already finalized")
	// ErrNoDocument marks an input that carries neither a source nor an error.
	ErrNoDocument = errors.New("merge: source produced no document")
)

// Options configures an Engine.
type Options struct {
	// Canon is the default rule set; sources may override it.
	Canon *epg.Canonicalizer
	// Logger defaults to the "merge" component logger.
	Logger *zerolog.Logger
}

// Engine merges sources one at a time. It is not safe for concurrent use:
// sources must be added in their configured order from a single goroutine,
// which is what makes first-source-wins deterministic.
type Engine struct {
	canon    *epg.Canonicalizer
	logger   zerolog.Logger
	registry *Registry
	dedup    *Deduplicator
	stats    []SourceStats
	state    State
	result   Result
}

// NewEngine returns an engine in StateProcessing.
func NewEngine(opts Options) *Engine {
	canon := opts.Canon
	if canon == nil {
		canon = epg.DefaultCanonicalizer()
	}
	logger := xglog.WithComponent("merge")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		canon:    canon,
		logger:   logger,
		registry: NewRegistry(canon),
		dedup:    NewDeduplicator(),
	}
}

// State returns the engine state.
func (e *Engine) State() State { return e.state }

// Add merges one parsed source: its channels are registered first, then its
// programmes are re-keyed through the source's identity map and admitted.
func (e *Engine) Add(src *Source) (SourceStats, error) {
	if e.state == StateDone {
		return SourceStats{}, ErrFinalized
	}
	if src == nil {
		return SourceStats{}, ErrNoDocument
	}

	st := SourceStats{Name: src.Name}
	canon := src.Canon
	if canon == nil {
		canon = e.canon
	}

	// identity map: source-scoped original id -> canonical id
	idMap := make(map[string]string, len(src.Channels))
	for _, ch := range src.Channels {
		st.Channels++
		if src.VODExclude != nil && src.VODExclude.MatchString(ch.DisplayName) {
			st.VODFiltered++
			continue
		}
		id, created := e.registry.register(canon, ch.DisplayName, ch.Icon)
		idMap[ch.OriginalID] = id
		if created {
			st.NewChannels++
		} else {
			st.Collapsed++
		}
	}

	for _, sp := range src.Programmes {
		st.Programmes++
		channelID, ok := idMap[sp.ChannelID]
		if !ok {
			st.Orphans++
			continue
		}

		start, stop, err := e.resolveTimes(src, sp)
		if err != nil {
			st.MalformedTimes++
			e.logger.Debug().
				Err(err).
				Str(xglog.FieldSource, src.Name).
				Str(xglog.FieldChannelID, channelID).
				Msg("skipping programme with malformed start")
			continue
		}

		p := Programme{
			ChannelID: channelID,
			Start:     start,
			Stop:      stop,
			Content:   sp.Content,
		}
		if e.dedup.Admit(p) {
			st.Admitted++
		} else {
			st.Duplicates++
		}
	}

	e.stats = append(e.stats, st)
	e.logger.Info().
		Str(xglog.FieldEvent, "merge.source_done").
		Str(xglog.FieldSource, st.Name).
		Int("channels_seen", st.Channels).
		Int("channels_new", st.NewChannels).
		Int("channels_collapsed", st.Collapsed).
		Int("vod_filtered", st.VODFiltered).
		Int("programmes_seen", st.Programmes).
		Int("admitted", st.Admitted).
		Int("duplicates", st.Duplicates).
		Int("orphans", st.Orphans).
		Int("malformed_times", st.MalformedTimes).
		Msg("source merged")
	return st, nil
}

// resolveTimes turns a source programme's start and stop into XMLTV
// date-times. Absolute values pass through untouched. A stop that cannot be
// inferred is dropped; a start that cannot be inferred fails the record.
func (e *Engine) resolveTimes(src *Source, sp SourceProgramme) (start, stop string, err error) {
	var startAt time.Time
	if epg.IsAbsolute(sp.Start) {
		start = sp.Start
	} else {
		startAt, err = epg.InferStart(sp.Start, src.Reference, src.Rollover)
		if err != nil {
			return "", "", err
		}
		start = epg.FormatTime(startAt)
	}

	switch {
	case strings.TrimSpace(sp.Stop) == "":
	case epg.IsAbsolute(sp.Stop):
		stop = sp.Stop
	default:
		var stopAt time.Time
		var stopErr error
		if startAt.IsZero() {
			stopAt, stopErr = epg.InferStart(sp.Stop, src.Reference, src.Rollover)
		} else {
			stopAt, stopErr = epg.InferStop(sp.Stop, startAt, src.Reference, src.Rollover)
		}
		if stopErr != nil {
			e.logger.Debug().Err(stopErr).Str(xglog.FieldSource, src.Name).Msg("dropping malformed stop")
			break
		}
		stop = epg.FormatTime(stopAt)
	}
	return start, stop, nil
}

// Fail records a source that could not be retrieved or parsed. The run goes on.
func (e *Engine) Fail(name string, err error) error {
	if e.state == StateDone {
		return ErrFinalized
	}
	if err == nil {
		err = ErrNoDocument
	}
	e.stats = append(e.stats, SourceStats{Name: name, Error: err})
	e.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "source.failed").
		Str(xglog.FieldSource, name).
		Msg("source skipped")
	return nil
}

// Finalize orders the channels by sort key, keeping registration order for
// equal keys, and moves the engine to StateDone. Later calls return the same
// result.
func (e *Engine) Finalize() Result {
	if e.state == StateDone {
		return e.result
	}
	channels := e.registry.Channels()
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].SortKey < channels[j].SortKey
	})

	e.result = Result{
		Channels:   channels,
		Programmes: e.dedup.Programmes(),
		Sources:    append([]SourceStats(nil), e.stats...),
	}
	e.state = StateDone

	e.logger.Info().
		Str(xglog.FieldEvent, "merge.done").
		Int(xglog.FieldChannels, len(e.result.Channels)).
		Int(xglog.FieldProgrammes, len(e.result.Programmes)).
		Int("sources", len(e.result.Sources)).
		Msg("merge finished")
	return e.result
}

// Merge feeds inputs to a fresh engine in slice order and returns the final
// result. Failed inputs are recorded and skipped; if every input failed the
// result is empty.
func Merge(inputs []Input, opts Options) Result {
	e := NewEngine(opts)
	for _, in := range inputs {
		name := in.Name
		if name == "" && in.Source != nil {
			name = in.Source.Name
		}
		if in.Err != nil || in.Source == nil {
			_ = e.Fail(name, in.Err)
			continue
		}
		src := *in.Source
		if src.Name == "" {
			src.Name = name
		}
		_, _ = e.Add(&src)
	}
	return e.Finalize()
}
