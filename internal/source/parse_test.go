// SPDX-License-Identifier: MIT

package source

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/epg"
	"github.com/ManuGH/epgmerge/internal/merge"
)

func titled(lang, s string) merge.Content {
	return merge.Content{Titles: []epg.LangText{{Lang: lang, Text: s}}}
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDecompress(t *testing.T) {
	plain := "<tv></tv>"
	gz := gzipped(t, plain)

	tests := []struct {
		name    string
		data    []byte
		mode    string
		want    string
		wantErr bool
	}{
		{name: "auto gzip", data: gz, mode: config.CompressionAuto, want: plain},
		{name: "auto plain", data: []byte(plain), mode: config.CompressionAuto, want: plain},
		{name: "forced gzip", data: gz, mode: config.CompressionGzip, want: plain},
		{name: "forced gzip on plain data", data: []byte(plain), mode: config.CompressionGzip, wantErr: true},
		{name: "none keeps bytes", data: gz, mode: config.CompressionNone, want: string(gz)},
		{name: "unknown mode", data: gz, mode: "zstd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decompress(tt.data, tt.mode, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecompress_Cap(t *testing.T) {
	gz := gzipped(t, strings.Repeat("a", 4096))
	_, err := Decompress(gz, config.CompressionAuto, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

const sampleXMLTV = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="upstream">
  <channel id="globo.br">
    <display-name>Globo SP (HD)</display-name>
    <display-name>Globo</display-name>
    <icon src="https://img/globo.png"/>
  </channel>
  <channel id="nameless.br"/>
  <programme start="20240311200000 -0300" stop="20240311210000 -0300" channel="globo.br">
    <title lang="pt">Jornal</title>
    <title lang="en">News</title>
    <sub-title>Edição 1</sub-title>
    <desc lang="pt">Notícias</desc>
    <category>News</category>
    <icon src="https://img/jn.png"/>
    <episode-num system="onscreen">E1</episode-num>
  </programme>
  <programme start=" 20240311210000 -0300 " channel="nameless.br">
    <title>Sem canal</title>
  </programme>
</tv>`

func TestParseXMLTV(t *testing.T) {
	src, err := ParseXMLTV(strings.NewReader(sampleXMLTV))
	require.NoError(t, err)

	wantChannels := []merge.SourceChannel{
		{OriginalID: "globo.br", DisplayName: "Globo SP (HD)", Icon: "https://img/globo.png"},
	}
	if diff := cmp.Diff(wantChannels, src.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	wantProgrammes := []merge.SourceProgramme{
		{
			ChannelID: "globo.br",
			Start:     "20240311200000 -0300",
			Stop:      "20240311210000 -0300",
			Content: merge.Content{
				Titles:     []epg.LangText{{Lang: "pt", Text: "Jornal"}, {Lang: "en", Text: "News"}},
				Descs:      []epg.LangText{{Lang: "pt", Text: "Notícias"}},
				Categories: []epg.LangText{{Text: "News"}},
				Icon:       "https://img/jn.png",
				Extra: []epg.Element{
					{XMLName: xml.Name{Local: "sub-title"}, Inner: "Edição 1"},
					{
						XMLName: xml.Name{Local: "episode-num"},
						Attrs:   []xml.Attr{{Name: xml.Name{Local: "system"}, Value: "onscreen"}},
						Inner:   "E1",
					},
				},
			},
		},
		{ChannelID: "nameless.br", Start: "20240311210000 -0300", Content: titled("", "Sem canal")},
	}
	if diff := cmp.Diff(wantProgrammes, src.Programmes); diff != "" {
		t.Errorf("programmes mismatch (-want +got):\n%s", diff)
	}
}

func TestParseXMLTV_Malformed(t *testing.T) {
	_, err := ParseXMLTV(strings.NewReader("<tv><channel>"))
	assert.Error(t, err)

	_, err = ParseXMLTV(strings.NewReader(""))
	assert.Error(t, err)
}

const singleChannelPage = `<html><head><meta charset="utf-8"></head><body>
<h1 class="day">2024-03-11</h1>
<ul>
  <li class="show"><span class="time">22:00</span><span class="title">Filme  da
    Noite</span><p class="desc">Drama</p><img class="thumb" data-src="https://img/f.png"></li>
  <li class="show"><span class="time">01:30</span><span class="title">Madrugada</span></li>
  <li class="show"><span class="time"></span><span class="title"></span></li>
</ul>
</body></html>`

func TestScrape_SingleChannel(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	fetched := time.Date(2024, 3, 12, 9, 0, 0, 0, loc)

	rules := config.HTMLRules{
		ProgrammeSelector: "li.show",
		StartSelector:     ".time",
		TitleSelector:     ".title",
		DescSelector:      ".desc",
		IconSelector:      "img.thumb",
		IconAttr:          "data-src",
		ReferenceSelector: "h1.day",
		Lang:              "pt",
	}
	fixed := config.FixedChannel{ID: "canal", Name: "Canal Exemplo", Icon: "https://img/c.png"}

	src, err := Scrape(strings.NewReader(singleChannelPage), "text/html; charset=utf-8", rules, fixed, fetched)
	require.NoError(t, err)

	assert.Equal(t, []merge.SourceChannel{{OriginalID: "canal", DisplayName: "Canal Exemplo", Icon: "https://img/c.png"}}, src.Channels)
	wantRef := time.Date(2024, 3, 11, 9, 0, 0, 0, loc)
	assert.True(t, wantRef.Equal(src.Reference), "page date replaces the fetch day, got %s", src.Reference)

	want := []merge.SourceProgramme{
		{ChannelID: "canal", Start: "22:00", Content: merge.Content{
			Titles: []epg.LangText{{Lang: "pt", Text: "Filme da Noite"}},
			Descs:  []epg.LangText{{Lang: "pt", Text: "Drama"}},
			Icon:   "https://img/f.png",
		}},
		{ChannelID: "canal", Start: "01:30", Content: titled("pt", "Madrugada")},
	}
	if diff := cmp.Diff(want, src.Programmes); diff != "" {
		t.Errorf("programmes mismatch (-want +got):\n%s", diff)
	}
}

func TestScrape_EarlyClocksRollToNextPageDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	rules := config.HTMLRules{
		ProgrammeSelector: "li.show",
		StartSelector:     ".time",
		TitleSelector:     ".title",
		ReferenceSelector: "h1.day",
	}
	for _, fetched := range []time.Time{
		time.Date(2024, 3, 12, 9, 0, 0, 0, loc),
		time.Date(2024, 3, 11, 8, 0, 0, 0, loc),
		time.Date(2024, 3, 11, 19, 0, 0, 0, loc),
	} {
		t.Run(fetched.Format(time.RFC3339), func(t *testing.T) {
			src, err := Scrape(strings.NewReader(singleChannelPage), "text/html", rules, config.FixedChannel{Name: "Canal"}, fetched)
			require.NoError(t, err)
			src.Name = "page"
			src.Rollover = 6 * time.Hour

			l := zerolog.Nop()
			res := merge.Merge([]merge.Input{{Source: src}}, merge.Options{Logger: &l})
			require.Len(t, res.Programmes, 2)

			starts := map[string]string{}
			for _, p := range res.Programmes {
				starts[p.Title()] = p.Start
			}
			assert.Equal(t, "20240311220000 -0300", starts["Filme da Noite"])
			assert.Equal(t, "20240312013000 -0300", starts["Madrugada"])
		})
	}
}

func TestScrape_ReferenceFallsBackToFetchTime(t *testing.T) {
	fetched := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	rules := config.HTMLRules{
		ProgrammeSelector: "li.show",
		StartSelector:     ".time",
		TitleSelector:     ".title",
		ReferenceSelector: ".missing",
	}
	src, err := Scrape(strings.NewReader(singleChannelPage), "text/html", rules, config.FixedChannel{Name: "X"}, fetched)
	require.NoError(t, err)
	assert.Equal(t, fetched, src.Reference)
	assert.Equal(t, defaultPageChannelID, src.Channels[0].OriginalID)
}

const multiChannelPage = `<html><body>
<section class="channel" data-id="c1">
  <h2>ESPN (HD)</h2><img class="logo" src="https://img/espn.png">
  <div class="slot"><b>10:00</b><i>11:00</i><span>SportsCenter</span></div>
</section>
<section class="channel">
  <h2>Viva</h2>
  <div class="slot"><b>10:30</b><span>Novela</span></div>
</section>
</body></html>`

func TestScrape_ChannelBlocks(t *testing.T) {
	rules := config.HTMLRules{
		ChannelSelector:     "section.channel",
		ChannelIDAttr:       "data-id",
		ChannelNameSelector: "h2",
		ChannelIconSelector: "img.logo",
		ProgrammeSelector:   "div.slot",
		StartSelector:       "b",
		StopSelector:        "i",
		TitleSelector:       "span",
	}
	src, err := Scrape(strings.NewReader(multiChannelPage), "", rules, config.FixedChannel{}, time.Now())
	require.NoError(t, err)

	wantChannels := []merge.SourceChannel{
		{OriginalID: "c1", DisplayName: "ESPN (HD)", Icon: "https://img/espn.png"},
		{OriginalID: "channel-1", DisplayName: "Viva"},
	}
	if diff := cmp.Diff(wantChannels, src.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	wantProgrammes := []merge.SourceProgramme{
		{ChannelID: "c1", Start: "10:00", Stop: "11:00", Content: titled("", "SportsCenter")},
		{ChannelID: "channel-1", Start: "10:30", Content: titled("", "Novela")},
	}
	if diff := cmp.Diff(wantProgrammes, src.Programmes); diff != "" {
		t.Errorf("programmes mismatch (-want +got):\n%s", diff)
	}
}

func TestScrape_Latin1Page(t *testing.T) {
	page := []byte("<html><body><ul><li><span class=\"t\">08:00</span><span class=\"n\">Manh\xe3</span></li></ul></body></html>")
	rules := config.HTMLRules{ProgrammeSelector: "li", StartSelector: ".t", TitleSelector: ".n"}

	src, err := Scrape(bytes.NewReader(page), "text/html; charset=ISO-8859-1", rules, config.FixedChannel{Name: "X"}, time.Now())
	require.NoError(t, err)
	require.Len(t, src.Programmes, 1)
	assert.Equal(t, "Manhã", src.Programmes[0].Title())
}
