// SPDX-License-Identifier: MIT
package epg

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferStart(t *testing.T) {
	ref := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		clock    string
		rollover time.Duration
		want     time.Time
	}{
		{
			name:     "rolls to next day",
			clock:    "01:00",
			rollover: 6 * time.Hour,
			want:     time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "late evening stays today",
			clock:    "23:30",
			rollover: 6 * time.Hour,
			want:     time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC),
		},
		{
			name:     "exactly at threshold stays",
			clock:    "02:00",
			rollover: 6 * time.Hour,
			want:     time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "inside window stays",
			clock:    "05:15",
			rollover: 6 * time.Hour,
			want:     time.Date(2024, 1, 1, 5, 15, 0, 0, time.UTC),
		},
		{
			name:     "zero rollover",
			clock:    "07:59",
			rollover: 0,
			want:     time.Date(2024, 1, 2, 7, 59, 0, 0, time.UTC),
		},
		{
			name:     "single digit hour and spaces",
			clock:    " 9:05 ",
			rollover: 6 * time.Hour,
			want:     time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferStart(tt.clock, ref, tt.rollover)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestInferStart_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	ref := time.Date(2024, 3, 10, 20, 0, 0, 0, loc)

	got, err := InferStart("21:00", ref, 5*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "20240310210000 -0300", FormatTime(got))

	got, err = InferStart("00:30", ref, 5*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "20240311003000 -0300", FormatTime(got))
}

func TestInferStart_Malformed(t *testing.T) {
	ref := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "24:00", "12:60", "ab:cd", "1230", "12:5", "12:30:00", "-1:00"} {
		t.Run(in, func(t *testing.T) {
			_, err := InferStart(in, ref, time.Hour)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedTime))

			var mte *MalformedTimeError
			require.ErrorAs(t, err, &mte)
			assert.Equal(t, in, mte.Input)
		})
	}
}

func TestInferStop(t *testing.T) {
	ref := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	start, err := InferStart("23:30", ref, 6*time.Hour)
	require.NoError(t, err)

	stop, err := InferStop("00:30", start, ref, 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "20240102003000 +0000", FormatTime(stop))

	stop, err = InferStop("23:45", start, ref, 6*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "20240101234500 +0000", FormatTime(stop))

	_, err = InferStop("99:00", start, ref, time.Hour)
	assert.ErrorIs(t, err, ErrMalformedTime)
}

func TestIsAbsolute(t *testing.T) {
	assert.True(t, IsAbsolute("20240101100000 +0000"))
	assert.True(t, IsAbsolute("20240101100000"))
	assert.True(t, IsAbsolute("202401011000"))
	assert.False(t, IsAbsolute("10:00"))
	assert.False(t, IsAbsolute(""))
	assert.False(t, IsAbsolute("2024-01-01T10:00:00Z"))
}

func TestFormatTime(t *testing.T) {
	testTime := time.Date(2024, 1, 15, 20, 30, 0, 0, time.UTC)
	assert.Equal(t, "20240115203000 +0000", FormatTime(testTime))
}
