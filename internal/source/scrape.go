// SPDX-License-Identifier: MIT

package source

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html/charset"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/merge"
)

const defaultPageChannelID = "page"

// Scrape extracts a guide from an HTML schedule page. ref anchors bare clock
// times and carries the source timezone; a date found under
// rules.ReferenceSelector replaces its calendar day. Start and stop texts are
// handed to the merge engine as found, trimmed.
func Scrape(r io.Reader, contentType string, rules config.HTMLRules, fixed config.FixedChannel, ref time.Time) (*merge.Source, error) {
	body, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	src := &merge.Source{Reference: pageReference(doc, rules.ReferenceSelector, ref)}

	if rules.ChannelSelector == "" {
		id := fixed.ID
		if id == "" {
			id = defaultPageChannelID
		}
		src.Channels = append(src.Channels, merge.SourceChannel{
			OriginalID:  id,
			DisplayName: fixed.Name,
			Icon:        fixed.Icon,
		})
		src.Programmes = scrapeProgrammes(doc.Selection, rules, id)
		return src, nil
	}

	iconAttr := rules.ChannelIconAttr
	if iconAttr == "" {
		iconAttr = "src"
	}
	doc.Find(rules.ChannelSelector).Each(func(i int, block *goquery.Selection) {
		id := ""
		if rules.ChannelIDAttr != "" {
			id = strings.TrimSpace(block.AttrOr(rules.ChannelIDAttr, ""))
		}
		if id == "" {
			id = fmt.Sprintf("channel-%d", i)
		}
		ch := merge.SourceChannel{
			OriginalID:  id,
			DisplayName: text(block, rules.ChannelNameSelector),
		}
		if rules.ChannelIconSelector != "" {
			ch.Icon = strings.TrimSpace(block.Find(rules.ChannelIconSelector).First().AttrOr(iconAttr, ""))
		}
		src.Channels = append(src.Channels, ch)
		src.Programmes = append(src.Programmes, scrapeProgrammes(block, rules, id)...)
	})
	return src, nil
}

func scrapeProgrammes(scope *goquery.Selection, rules config.HTMLRules, channelID string) []merge.SourceProgramme {
	iconAttr := rules.IconAttr
	if iconAttr == "" {
		iconAttr = "src"
	}
	var out []merge.SourceProgramme
	scope.Find(rules.ProgrammeSelector).Each(func(_ int, row *goquery.Selection) {
		title := text(row, rules.TitleSelector)
		p := merge.SourceProgramme{
			ChannelID: channelID,
			Start:     text(row, rules.StartSelector),
			Stop:      text(row, rules.StopSelector),
		}
		if p.Start == "" && title == "" {
			return
		}
		p.Titles = langTexts(title, rules.Lang)
		p.Descs = langTexts(text(row, rules.DescSelector), rules.Lang)
		p.Categories = langTexts(text(row, rules.CategorySelector), rules.Lang)
		if rules.IconSelector != "" {
			p.Icon = strings.TrimSpace(row.Find(rules.IconSelector).First().AttrOr(iconAttr, ""))
		}
		out = append(out, p)
	})
	return out
}

func langTexts(s, lang string) []epg.LangText {
	if s == "" {
		return nil
	}
	return []epg.LangText{{Lang: lang, Text: s}}
}

// text returns the trimmed text of the first match, or "" without a selector.
func text(scope *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(scope.Find(selector).First().Text()), " ")
}

// pageReference parses the page's own date, if any, in ref's location. A bare
// date takes ref's time of day, so the rollover window still moves early
// morning clocks onto the following day. A date with a time of day is used
// as found.
func pageReference(doc *goquery.Document, selector string, ref time.Time) time.Time {
	if selector == "" {
		return ref
	}
	raw := text(doc.Selection, selector)
	if raw == "" {
		return ref
	}
	t, err := dateparse.ParseIn(raw, ref.Location())
	if err != nil {
		return ref
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		t = time.Date(t.Year(), t.Month(), t.Day(), ref.Hour(), ref.Minute(), ref.Second(), 0, ref.Location())
	}
	return t
}
