// SPDX-License-Identifier: MIT

// Package merge collapses channels and programmes from several guide sources
// into one deduplicated guide.
package merge

import (
	"regexp"
	"time"

	"github.com/ManuGH/epgmerge/internal/epg"
)

// SourceChannel is a channel as one source declares it. OriginalID is only
// unique within its source.
type SourceChannel struct {
	OriginalID  string
	DisplayName string
	Icon        string
}

// SourceProgramme is a programme as one source declares it. Start and Stop are
// either XMLTV date-times or bare "HH:MM" clocks.
type SourceProgramme struct {
	ChannelID string
	Start     string
	Stop      string
	Content
}

// Source is one parsed guide document plus the rules that apply to it.
type Source struct {
	Name       string
	Channels   []SourceChannel
	Programmes []SourceProgramme

	// Reference anchors bare clocks; usually the fetch time in the source timezone.
	Reference time.Time
	// Rollover is how far in the past a bare clock may lie before it is
	// taken to mean the next day.
	Rollover time.Duration
	// VODExclude drops channels whose display name matches. Optional.
	VODExclude *regexp.Regexp
	// Canon overrides the engine's canonicalization rules. Optional.
	Canon *epg.Canonicalizer
}

// Channel is a merged channel. It is never modified after registration.
type Channel struct {
	ID          string
	DisplayName string
	Icon        string
	SortKey     string
}

// Programme is a merged programme keyed to a canonical channel id.
type Programme struct {
	ChannelID string
	Start     string
	Stop      string
	Content
}

// Content is everything about a programme besides its channel and times. It
// is carried from source to output unchanged.
type Content struct {
	Titles     []epg.LangText
	Descs      []epg.LangText
	Categories []epg.LangText
	Icon       string
	// Extra holds children such as sub-title or episode-num verbatim.
	Extra []epg.Element
}

// Title returns the first title, or "" without one.
func (c Content) Title() string {
	if len(c.Titles) == 0 {
		return ""
	}
	return c.Titles[0].Text
}

// SourceStats summarizes what happened to one source during a merge.
type SourceStats struct {
	Name  string
	Error error

	Channels       int // records seen
	VODFiltered    int
	NewChannels    int // registered for the first time
	Collapsed      int // mapped onto an id another record already owned
	Programmes     int // records seen
	Admitted       int
	Duplicates     int
	Orphans        int
	MalformedTimes int
}

// OK reports whether the source was merged.
func (s SourceStats) OK() bool { return s.Error == nil }

// Result is the final output model of a run.
type Result struct {
	Channels   []Channel
	Programmes []Programme
	Sources    []SourceStats
}

// Input is the outcome of loading one configured source: either a parsed
// Source or the error that prevented it.
type Input struct {
	Name   string
	Source *Source
	Err    error
}
