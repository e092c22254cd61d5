// SPDX-License-Identifier: MIT

// Package jobs runs guide refreshes: load every source, merge, write the
// guide and record the outcome.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/merge"
)

// Run outcomes, used in metrics labels and history rows.
const (
	OutcomeSuccess = "success" // every source merged
	OutcomePartial = "partial" // guide written, some sources failed
	OutcomeFailed  = "failed"
)

var (
	// ErrRunInProgress is returned when a refresh is requested while one is running.
	ErrRunInProgress = errors.New("refresh already in progress")
	// ErrNoSources is returned when every source failed to load.
	ErrNoSources = errors.New("all sources failed")
)

// SourceLoader loads the configured sources, one Input per source in
// configured order.
type SourceLoader interface {
	LoadAll(ctx context.Context, cfg config.AppConfig) []merge.Input
}

// LoaderFactory builds a loader for the given fetch settings.
type LoaderFactory func(config.FetchSettings) SourceLoader

// SourceStatus is the per-source part of a run status.
type SourceStatus struct {
	Name           string `json:"name"`
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	Channels       int    `json:"channels"`
	NewChannels    int    `json:"newChannels"`
	Collapsed      int    `json:"collapsed"`
	VODFiltered    int    `json:"vodFiltered"`
	Programmes     int    `json:"programmes"`
	Admitted       int    `json:"admitted"`
	Duplicates     int    `json:"duplicates"`
	Orphans        int    `json:"orphans"`
	MalformedTimes int    `json:"malformedTimes"`
}

// Status describes one finished run.
type Status struct {
	RunID      string         `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	DurationMS int64          `json:"durationMs"`
	Outcome    string         `json:"outcome"`
	Channels   int            `json:"channels"`
	Programmes int            `json:"programmes"`
	OutputPath string         `json:"outputPath"`
	Written    bool           `json:"written"`
	Warning    string         `json:"warning,omitempty"`
	Error      string         `json:"error,omitempty"`
	Sources    []SourceStatus `json:"sources"`
}

// SourcesFailed counts the sources that could not be merged.
func (s *Status) SourcesFailed() int {
	n := 0
	for _, src := range s.Sources {
		if !src.OK {
			n++
		}
	}
	return n
}

func sourceStatus(st merge.SourceStats) SourceStatus {
	out := SourceStatus{
		Name:           st.Name,
		OK:             st.OK(),
		Channels:       st.Channels,
		NewChannels:    st.NewChannels,
		Collapsed:      st.Collapsed,
		VODFiltered:    st.VODFiltered,
		Programmes:     st.Programmes,
		Admitted:       st.Admitted,
		Duplicates:     st.Duplicates,
		Orphans:        st.Orphans,
		MalformedTimes: st.MalformedTimes,
	}
	if st.Error != nil {
		out.Error = st.Error.Error()
	}
	return out
}
