// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/epgmerge/internal/epg"
)

const (
	DefaultDataDir    = "."
	DefaultOutputPath = "epg-gemini.xml"
	DefaultGenerator  = "Gemini-DNA-UltraAlpha"
	DefaultIndent     = "\t"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	DefaultListenAddr = ":8080"
	DefaultHistory    = "epgmerge.db"

	// DefaultVODPattern matches on-demand entries that some feeds list as channels.
	DefaultVODPattern = `(?i)\.mp4|\.mkv|temporada|s01`

	defaultTimeout          = 60 * time.Second
	defaultRetries          = 2
	defaultBackoff          = 500 * time.Millisecond
	defaultMaxBytes         = 256 << 20
	defaultMaxConcurrency   = 4
	defaultRateBurst        = 1
	defaultBreakerThreshold = 3
	defaultBreakerReset     = 5 * time.Minute
	defaultRefreshPerMinute = 10
	defaultHistoryRetain    = 500
	defaultRolloverHours    = 6
)

// DefaultSources are the two Brazilian epgshare01 feeds merged when no
// sources are configured.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:        "epgshare-br1",
			Kind:        KindXMLTV,
			URL:         "https://epgshare01.online/epgshare01/epg_ripper_BR1.xml.gz",
			Compression: CompressionAuto,
		},
		{
			Name:        "epgshare-br2",
			Kind:        KindXMLTV,
			URL:         "https://epgshare01.online/epgshare01/epg_ripper_BR2.xml.gz",
			Compression: CompressionAuto,
		},
	}
}

func (l *Loader) setDefaults(cfg *AppConfig) error {
	cfg.DataDir = DefaultDataDir
	cfg.LogLevel = "info"
	cfg.LogService = "epgmerge"

	cfg.Output = OutputSettings{
		Path:       DefaultOutputPath,
		Generator:  DefaultGenerator,
		Indent:     DefaultIndent,
		WriteEmpty: true,
	}

	cfg.Canonical = CanonicalRules{
		Suffix:       epg.DefaultSuffix,
		UnknownID:    epg.DefaultUnknownID,
		RemovalTerms: append([]string(nil), epg.DefaultRemovalTerms...),
		NoisePattern: epg.DefaultNoisePattern,
	}

	cfg.Fetch = FetchSettings{
		Timeout:          defaultTimeout,
		UserAgent:        DefaultUserAgent,
		Retries:          defaultRetries,
		Backoff:          defaultBackoff,
		MaxBytes:         defaultMaxBytes,
		MaxConcurrency:   defaultMaxConcurrency,
		RateBurst:        defaultRateBurst,
		BreakerThreshold: defaultBreakerThreshold,
		BreakerReset:     defaultBreakerReset,
	}

	cfg.Cache = CacheSettings{Backend: CacheMemory}
	cfg.Sources = DefaultSources()

	cfg.API = APISettings{
		ListenAddr:       DefaultListenAddr,
		RefreshPerMinute: defaultRefreshPerMinute,
	}
	cfg.History = HistorySettings{Path: DefaultHistory, Retain: defaultHistoryRetain}
	cfg.Telemetry = TelemetrySettings{
		Exporter:     "grpc",
		Endpoint:     "localhost:4317",
		SamplingRate: 1.0,
	}
	return nil
}

// normalizeSource fills per-source defaults that depend on the source kind.
func normalizeSource(s *SourceConfig) {
	if s.Kind == "" {
		s.Kind = KindXMLTV
	}
	if s.Compression == "" {
		s.Compression = CompressionAuto
	}
	if s.Kind == KindHTML && s.RolloverHours == 0 {
		s.RolloverHours = defaultRolloverHours
	}
}
