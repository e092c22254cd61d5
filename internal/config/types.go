// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and reloads the epgmerge configuration.
//
// Values are resolved with the precedence ENV > YAML file > defaults. The YAML
// file is parsed strictly: unknown keys and trailing documents are errors.
package config

import (
	"path/filepath"
	"time"

	"github.com/ManuGH/epgmerge/internal/epg"
)

// Source kinds.
const (
	KindXMLTV = "xmltv"
	KindHTML  = "html"
)

// Compression modes for fetched payloads.
const (
	CompressionAuto = "auto"
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// FileConfig represents the YAML configuration structure. Durations are Go
// duration strings ("60s"); pointer fields distinguish unset from false/zero.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	Output    OutputFileConfig    `yaml:"output,omitempty"`
	Canonical *CanonicalRules     `yaml:"canonical,omitempty"`
	Fetch     FetchFileConfig     `yaml:"fetch,omitempty"`
	Cache     CacheFileConfig     `yaml:"cache,omitempty"`
	Sources   []SourceConfig      `yaml:"sources,omitempty"`
	Schedule  ScheduleFileConfig  `yaml:"schedule,omitempty"`
	API       APIFileConfig       `yaml:"api,omitempty"`
	History   HistoryFileConfig   `yaml:"history,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type OutputFileConfig struct {
	Path       string  `yaml:"path,omitempty"`
	Generator  string  `yaml:"generator,omitempty"`
	Indent     *string `yaml:"indent,omitempty"`
	WriteEmpty *bool   `yaml:"writeEmpty,omitempty"`
}

type FetchFileConfig struct {
	Timeout          string   `yaml:"timeout,omitempty"`
	UserAgent        string   `yaml:"userAgent,omitempty"`
	Retries          *int     `yaml:"retries,omitempty"`
	Backoff          string   `yaml:"backoff,omitempty"`
	MaxBytes         *int64   `yaml:"maxBytes,omitempty"`
	MaxConcurrency   int      `yaml:"maxConcurrency,omitempty"`
	RateLimit        *float64 `yaml:"rateLimit,omitempty"`
	RateBurst        int      `yaml:"rateBurst,omitempty"`
	CacheTTL         string   `yaml:"cacheTTL,omitempty"`
	BreakerThreshold int      `yaml:"breakerThreshold,omitempty"`
	BreakerReset     string   `yaml:"breakerReset,omitempty"`
}

type CacheFileConfig struct {
	Backend       string `yaml:"backend,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDb,omitempty"`
}

type ScheduleFileConfig struct {
	Interval string `yaml:"interval,omitempty"`
}

type APIFileConfig struct {
	Enabled          *bool  `yaml:"enabled,omitempty"`
	ListenAddr       string `yaml:"listenAddr,omitempty"`
	RefreshPerMinute int    `yaml:"refreshPerMinute,omitempty"`
}

type HistoryFileConfig struct {
	Path   *string `yaml:"path,omitempty"`
	Retain int     `yaml:"retain,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// CanonicalRules configures channel id derivation. In a per-source override,
// empty fields inherit the global rules.
type CanonicalRules struct {
	Suffix       string   `yaml:"suffix,omitempty"`
	UnknownID    string   `yaml:"unknownId,omitempty"`
	RemovalTerms []string `yaml:"removalTerms,omitempty"`
	NoisePattern string   `yaml:"noisePattern,omitempty"`
}

// Canonicalizer compiles the rules.
func (r CanonicalRules) Canonicalizer() (*epg.Canonicalizer, error) {
	return epg.NewCanonicalizer(r.RemovalTerms, r.NoisePattern, r.Suffix, r.UnknownID)
}

// SourceConfig describes one guide source.
type SourceConfig struct {
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind,omitempty"`
	URL         string `yaml:"url"`
	Compression string `yaml:"compression,omitempty"`
	// VODExclude drops channels whose display name matches. Nil selects the
	// default pattern; an explicit empty string disables filtering.
	VODExclude    *string         `yaml:"vodExclude,omitempty"`
	Timezone      string          `yaml:"timezone,omitempty"`
	RolloverHours int             `yaml:"rolloverHours,omitempty"`
	Canonical     *CanonicalRules `yaml:"canonical,omitempty"`
	HTML          HTMLRules       `yaml:"html,omitempty"`
	Channel       FixedChannel    `yaml:"channel,omitempty"`
}

// HTMLRules are the CSS selectors used to scrape a guide page. Without a
// ChannelSelector the page is read as the schedule of the single channel
// named in SourceConfig.Channel.
type HTMLRules struct {
	ChannelSelector     string `yaml:"channelSelector,omitempty"`
	ChannelIDAttr       string `yaml:"channelIdAttr,omitempty"`
	ChannelNameSelector string `yaml:"channelNameSelector,omitempty"`
	ChannelIconSelector string `yaml:"channelIconSelector,omitempty"`
	ChannelIconAttr     string `yaml:"channelIconAttr,omitempty"`
	ProgrammeSelector   string `yaml:"programmeSelector,omitempty"`
	StartSelector       string `yaml:"startSelector,omitempty"`
	StopSelector        string `yaml:"stopSelector,omitempty"`
	TitleSelector       string `yaml:"titleSelector,omitempty"`
	DescSelector        string `yaml:"descSelector,omitempty"`
	CategorySelector    string `yaml:"categorySelector,omitempty"`
	IconSelector        string `yaml:"iconSelector,omitempty"`
	IconAttr            string `yaml:"iconAttr,omitempty"`
	ReferenceSelector   string `yaml:"referenceSelector,omitempty"`
	Lang                string `yaml:"lang,omitempty"`
}

// FixedChannel names the channel of a single-channel page.
type FixedChannel struct {
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name,omitempty"`
	Icon string `yaml:"icon,omitempty"`
}

// VODPattern returns the effective VOD exclusion pattern.
func (s SourceConfig) VODPattern() string {
	if s.VODExclude == nil {
		return DefaultVODPattern
	}
	return *s.VODExclude
}

// Rollover returns the configured rollover window.
func (s SourceConfig) Rollover() time.Duration {
	return time.Duration(s.RolloverHours) * time.Hour
}

// Location returns the source timezone; an empty or unknown name yields local time.
func (s SourceConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	LogLevel   string
	LogService string

	Output    OutputSettings
	Canonical CanonicalRules
	Fetch     FetchSettings
	Cache     CacheSettings
	Sources   []SourceConfig
	Schedule  ScheduleSettings
	API       APISettings
	History   HistorySettings
	Telemetry TelemetrySettings
}

type OutputSettings struct {
	Path       string
	Generator  string
	Indent     string
	WriteEmpty bool
}

type FetchSettings struct {
	Timeout          time.Duration
	UserAgent        string
	Retries          int
	Backoff          time.Duration
	MaxBytes         int64
	MaxConcurrency   int
	RateLimit        float64 // requests per second, 0 = unlimited
	RateBurst        int
	CacheTTL         time.Duration // 0 disables the payload cache
	BreakerThreshold int
	BreakerReset     time.Duration
}

type CacheSettings struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ScheduleSettings struct {
	Interval time.Duration // 0 = run once
}

type APISettings struct {
	Enabled          bool
	ListenAddr       string
	RefreshPerMinute int
}

type HistorySettings struct {
	Path   string // empty disables run history
	Retain int
}

type TelemetrySettings struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// OutputPath returns the guide path, resolved against DataDir when relative.
func (c AppConfig) OutputPath() string {
	return c.resolve(c.Output.Path)
}

// HistoryPath returns the run history database path, or "" when disabled.
func (c AppConfig) HistoryPath() string {
	if c.History.Path == "" {
		return ""
	}
	return c.resolve(c.History.Path)
}

func (c AppConfig) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// CanonicalFor returns the rules for src: the global rules with the source
// override applied field by field.
func (c AppConfig) CanonicalFor(src SourceConfig) CanonicalRules {
	rules := c.Canonical
	if o := src.Canonical; o != nil {
		if o.Suffix != "" {
			rules.Suffix = o.Suffix
		}
		if o.UnknownID != "" {
			rules.UnknownID = o.UnknownID
		}
		if o.RemovalTerms != nil {
			rules.RemovalTerms = o.RemovalTerms
		}
		if o.NoisePattern != "" {
			rules.NoisePattern = o.NoisePattern
		}
	}
	return rules
}
