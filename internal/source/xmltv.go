// SPDX-License-Identifier: MIT

package source

import (
	"io"
	"strings"

	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/merge"
)

// ParseXMLTV reads an XMLTV document into a merge source. A channel without
// a display-name element is skipped; when several are present the first one
// names the channel. Programme times are passed through verbatim, as is
// every other programme child.
func ParseXMLTV(r io.Reader) (*merge.Source, error) {
	tv, err := epg.Decode(r)
	if err != nil {
		return nil, err
	}

	src := &merge.Source{
		Channels:   make([]merge.SourceChannel, 0, len(tv.Channels)),
		Programmes: make([]merge.SourceProgramme, 0, len(tv.Programs)),
	}
	for _, ch := range tv.Channels {
		if len(ch.DisplayName) == 0 {
			continue
		}
		sc := merge.SourceChannel{
			OriginalID:  ch.ID,
			DisplayName: ch.DisplayName[0],
		}
		if ch.Icon != nil {
			sc.Icon = ch.Icon.Src
		}
		src.Channels = append(src.Channels, sc)
	}

	for _, p := range tv.Programs {
		sp := merge.SourceProgramme{
			ChannelID: p.Channel,
			Start:     strings.TrimSpace(p.Start),
			Stop:      strings.TrimSpace(p.Stop),
			Content: merge.Content{
				Titles:     p.Titles,
				Descs:      p.Descs,
				Categories: p.Categories,
				Extra:      p.Extra,
			},
		}
		if p.Icon != nil {
			sp.Icon = p.Icon.Src
		}
		src.Programmes = append(src.Programmes, sp)
	}
	return src, nil
}
