// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/epgmerge/internal/log"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("EPGMERGE_TEST_BOOL", tt.value)
			assert.Equal(t, tt.want, ParseBool("EPGMERGE_TEST_BOOL", tt.def))
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Setenv("EPGMERGE_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, ParseDuration("EPGMERGE_TEST_DUR", time.Minute))

	t.Setenv("EPGMERGE_TEST_DUR", "ninety")
	assert.Equal(t, time.Minute, ParseDuration("EPGMERGE_TEST_DUR", time.Minute))
}

func TestParseInt(t *testing.T) {
	t.Setenv("EPGMERGE_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("EPGMERGE_TEST_INT", 7))

	t.Setenv("EPGMERGE_TEST_INT", "4x2")
	assert.Equal(t, 7, ParseInt("EPGMERGE_TEST_INT", 7))
}

func TestParseInt_InvalidValueLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	t.Setenv("EPGMERGE_TEST_INT", "lots")
	assert.Equal(t, 3, ParseInt("EPGMERGE_TEST_INT", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "config", entry["component"])
	assert.Equal(t, "EPGMERGE_TEST_INT", entry["key"])
	assert.Equal(t, "lots", entry["value"])
	assert.EqualValues(t, 3, entry["default"])
}

func TestParseString_EmptyFallsBack(t *testing.T) {
	t.Setenv("EPGMERGE_TEST_STR", "")
	assert.Equal(t, "fallback", ParseString("EPGMERGE_TEST_STR", "fallback"))

	t.Setenv("EPGMERGE_TEST_STR", "set")
	assert.Equal(t, "set", ParseString("EPGMERGE_TEST_STR", "fallback"))
}
