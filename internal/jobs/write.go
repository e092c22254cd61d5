// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/merge"
	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// buildTV converts a merge result into the XMLTV document model.
func buildTV(res merge.Result, generator string) *epg.TV {
	if generator == "" {
		generator = epg.DefaultGenerator
	}
	tv := &epg.TV{
		Generator: generator,
		Channels:  make([]epg.Channel, 0, len(res.Channels)),
		Programs:  make([]epg.Programme, 0, len(res.Programmes)),
	}
	for _, ch := range res.Channels {
		c := epg.Channel{ID: ch.ID, DisplayName: []string{ch.DisplayName}}
		if ch.Icon != "" {
			c.Icon = &epg.Icon{Src: ch.Icon}
		}
		tv.Channels = append(tv.Channels, c)
	}
	for _, p := range res.Programmes {
		prog := epg.Programme{
			Start:      p.Start,
			Stop:       p.Stop,
			Channel:    p.ChannelID,
			Titles:     p.Titles,
			Descs:      p.Descs,
			Categories: p.Categories,
			Extra:      p.Extra,
		}
		if len(prog.Titles) == 0 {
			// title is mandatory in XMLTV
			prog.Titles = []epg.LangText{{}}
		}
		if p.Icon != "" {
			prog.Icon = &epg.Icon{Src: p.Icon}
		}
		tv.Programs = append(tv.Programs, prog)
	}
	return tv
}

// writeGuide streams tv into a pending file and atomically replaces path.
// A failed write leaves the previous guide in place.
func writeGuide(ctx context.Context, path string, tv *epg.TV, indent string) error {
	logger := xglog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending guide file: %w", err)
	}
	defer func() {
		// no-op after a successful replace
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending guide file")
		}
	}()

	if err := epg.Encode(pendingFile, tv, indent); err != nil {
		return fmt.Errorf("write guide data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace guide file: %w", err)
	}
	return nil
}
