// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // env keys consulted by the last Load
}

// NewLoader creates a new configuration loader. An empty configPath loads
// defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envLookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	return os.LookupEnv(key)
}

// Path returns the config file path, or "" when none is used.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}

	if err := l.setDefaults(&cfg); err != nil {
		return cfg, fmt.Errorf("set defaults: %w", err)
	}

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := l.mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	for i := range cfg.Sources {
		normalizeSource(&cfg.Sources[i])
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return parseFileConfig(data)
}

func parseFileConfig(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// mergeFileConfig applies every field the file sets on top of cfg.
func (l *Loader) mergeFileConfig(cfg *AppConfig, fc *FileConfig) error {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogService, fc.LogService)

	setString(&cfg.Output.Path, fc.Output.Path)
	setString(&cfg.Output.Generator, fc.Output.Generator)
	if fc.Output.Indent != nil {
		cfg.Output.Indent = *fc.Output.Indent
	}
	if fc.Output.WriteEmpty != nil {
		cfg.Output.WriteEmpty = *fc.Output.WriteEmpty
	}

	if c := fc.Canonical; c != nil {
		setString(&cfg.Canonical.Suffix, c.Suffix)
		setString(&cfg.Canonical.UnknownID, c.UnknownID)
		if c.RemovalTerms != nil {
			cfg.Canonical.RemovalTerms = c.RemovalTerms
		}
		setString(&cfg.Canonical.NoisePattern, c.NoisePattern)
	}

	f := fc.Fetch
	var err error
	if cfg.Fetch.Timeout, err = parseDur("fetch.timeout", f.Timeout, cfg.Fetch.Timeout); err != nil {
		return err
	}
	setString(&cfg.Fetch.UserAgent, f.UserAgent)
	if f.Retries != nil {
		cfg.Fetch.Retries = *f.Retries
	}
	if cfg.Fetch.Backoff, err = parseDur("fetch.backoff", f.Backoff, cfg.Fetch.Backoff); err != nil {
		return err
	}
	if f.MaxBytes != nil {
		cfg.Fetch.MaxBytes = *f.MaxBytes
	}
	setInt(&cfg.Fetch.MaxConcurrency, f.MaxConcurrency)
	if f.RateLimit != nil {
		cfg.Fetch.RateLimit = *f.RateLimit
	}
	setInt(&cfg.Fetch.RateBurst, f.RateBurst)
	if cfg.Fetch.CacheTTL, err = parseDur("fetch.cacheTTL", f.CacheTTL, cfg.Fetch.CacheTTL); err != nil {
		return err
	}
	setInt(&cfg.Fetch.BreakerThreshold, f.BreakerThreshold)
	if cfg.Fetch.BreakerReset, err = parseDur("fetch.breakerReset", f.BreakerReset, cfg.Fetch.BreakerReset); err != nil {
		return err
	}

	setString(&cfg.Cache.Backend, fc.Cache.Backend)
	setString(&cfg.Cache.RedisAddr, fc.Cache.RedisAddr)
	setString(&cfg.Cache.RedisPassword, expandEnv(fc.Cache.RedisPassword))
	setInt(&cfg.Cache.RedisDB, fc.Cache.RedisDB)

	if fc.Sources != nil {
		cfg.Sources = append([]SourceConfig(nil), fc.Sources...)
	}

	if cfg.Schedule.Interval, err = parseDur("schedule.interval", fc.Schedule.Interval, cfg.Schedule.Interval); err != nil {
		return err
	}

	if fc.API.Enabled != nil {
		cfg.API.Enabled = *fc.API.Enabled
	}
	setString(&cfg.API.ListenAddr, fc.API.ListenAddr)
	setInt(&cfg.API.RefreshPerMinute, fc.API.RefreshPerMinute)

	if fc.History.Path != nil {
		cfg.History.Path = *fc.History.Path
	}
	setInt(&cfg.History.Retain, fc.History.Retain)

	if fc.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *fc.Telemetry.Enabled
	}
	setString(&cfg.Telemetry.Exporter, fc.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, fc.Telemetry.Endpoint)
	if fc.Telemetry.SamplingRate != nil {
		cfg.Telemetry.SamplingRate = *fc.Telemetry.SamplingRate
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func parseDur(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	return d, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
