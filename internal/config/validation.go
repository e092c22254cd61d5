// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/epgmerge/internal/validate"
)

var (
	sourceKinds       = []string{KindXMLTV, KindHTML}
	compressionModes  = []string{CompressionAuto, CompressionGzip, CompressionNone}
	cacheBackends     = []string{CacheNone, CacheMemory, CacheRedis}
	telemetryExporter = []string{"grpc", "http"}
	sourceSchemes     = []string{"http", "https", "file"}
)

// Validate validates an AppConfig using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	if cfg.LogLevel != "" {
		if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
			v.AddError("logLevel", err.Error(), cfg.LogLevel)
		}
	}

	v.NotEmpty("output.path", cfg.Output.Path)
	v.NotEmpty("output.generator", cfg.Output.Generator)

	validateCanonical(v, "canonical", cfg.Canonical)

	if cfg.Fetch.Timeout <= 0 {
		v.AddError("fetch.timeout", "must be positive", cfg.Fetch.Timeout)
	}
	v.Range("fetch.retries", cfg.Fetch.Retries, 0, 10)
	v.NonNegativeDuration("fetch.backoff", cfg.Fetch.Backoff)
	if cfg.Fetch.MaxBytes < 0 {
		v.AddError("fetch.maxBytes", "cannot be negative", cfg.Fetch.MaxBytes)
	}
	v.Range("fetch.maxConcurrency", cfg.Fetch.MaxConcurrency, 1, 32)
	if cfg.Fetch.RateLimit < 0 {
		v.AddError("fetch.rateLimit", "cannot be negative", cfg.Fetch.RateLimit)
	}
	v.Positive("fetch.rateBurst", cfg.Fetch.RateBurst)
	v.NonNegativeDuration("fetch.cacheTTL", cfg.Fetch.CacheTTL)
	v.Positive("fetch.breakerThreshold", cfg.Fetch.BreakerThreshold)
	v.NonNegativeDuration("fetch.breakerReset", cfg.Fetch.BreakerReset)

	v.OneOf("cache.backend", cfg.Cache.Backend, cacheBackends)
	if cfg.Cache.Backend == CacheRedis {
		v.NotEmpty("cache.redisAddr", cfg.Cache.RedisAddr)
	}

	validateSources(v, cfg.Sources)

	v.NonNegativeDuration("schedule.interval", cfg.Schedule.Interval)

	if cfg.API.Enabled {
		v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
		v.Positive("api.refreshPerMinute", cfg.API.RefreshPerMinute)
	}

	v.NonNegative("history.retain", cfg.History.Retain)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, telemetryExporter)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}

func validateCanonical(v *validate.Validator, field string, rules CanonicalRules) {
	v.Regexp(field+".noisePattern", rules.NoisePattern)
}

func validateSources(v *validate.Validator, sources []SourceConfig) {
	if len(sources) == 0 {
		v.AddError("sources", "at least one source is required", nil)
		return
	}

	seen := make(map[string]int, len(sources))
	for i, s := range sources {
		field := fmt.Sprintf("sources[%d]", i)

		v.NotEmpty(field+".name", s.Name)
		if prev, dup := seen[s.Name]; dup && s.Name != "" {
			v.AddError(field+".name", fmt.Sprintf("duplicate source name (also sources[%d])", prev), s.Name)
		} else {
			seen[s.Name] = i
		}

		v.OneOf(field+".kind", s.Kind, sourceKinds)
		v.URL(field+".url", s.URL, sourceSchemes)
		v.OneOf(field+".compression", s.Compression, compressionModes)
		v.Regexp(field+".vodExclude", s.VODPattern())
		v.Timezone(field+".timezone", s.Timezone)
		if s.Canonical != nil {
			validateCanonical(v, field+".canonical", *s.Canonical)
		}

		if s.Kind != KindHTML {
			continue
		}
		v.Range(field+".rolloverHours", s.RolloverHours, 1, 24)
		v.NotEmpty(field+".html.programmeSelector", s.HTML.ProgrammeSelector)
		v.NotEmpty(field+".html.startSelector", s.HTML.StartSelector)
		v.NotEmpty(field+".html.titleSelector", s.HTML.TitleSelector)
		if s.HTML.ChannelSelector == "" {
			v.NotEmpty(field+".channel.name", s.Channel.Name)
		} else if s.HTML.ChannelNameSelector == "" {
			v.AddError(field+".html.channelNameSelector", "required with channelSelector", "")
		}
	}
}
