// SPDX-License-Identifier: MIT
package epg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the XMLTV date-time layout: YYYYMMDDHHMMSS ±HHMM.
const TimeLayout = "20060102150405 -0700"

// ErrMalformedTime classifies bare times of day that cannot be parsed.
var ErrMalformedTime = errors.New("malformed time of day")

// MalformedTimeError reports a bare time of day that could not be parsed.
type MalformedTimeError struct {
	Input  string
	Reason string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("malformed time of day %q: %s", e.Input, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedTime) hold.
func (e *MalformedTimeError) Is(target error) bool {
	return target == ErrMalformedTime
}

var (
	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	absolutePattern = regexp.MustCompile(`^\d{12,14}(\s|$)`)
)

// FormatTime formats t in XMLTV layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// IsAbsolute reports whether s already carries a full XMLTV date-time.
func IsAbsolute(s string) bool {
	return absolutePattern.MatchString(strings.TrimSpace(s))
}

// ParseClock parses "HH:MM" (a single digit hour is accepted).
func ParseClock(s string) (hour, minute int, err error) {
	in := strings.TrimSpace(s)
	m := clockPattern.FindStringSubmatch(in)
	if m == nil {
		return 0, 0, &MalformedTimeError{Input: s, Reason: "expected HH:MM"}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, &MalformedTimeError{Input: s, Reason: "hour out of range"}
	}
	if minute > 59 {
		return 0, 0, &MalformedTimeError{Input: s, Reason: "minute out of range"}
	}
	return hour, minute, nil
}

// InferStart places a bare time of day on the reference instant's calendar
// date. A candidate more than rollover before ref is taken to mean the next
// day; only a single day is ever added.
func InferStart(clock string, ref time.Time, rollover time.Duration) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if candidate.Before(ref.Add(-rollover)) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

// InferStop infers a stop time like InferStart and then moves it forward by
// whole days until it falls after start.
func InferStop(clock string, start, ref time.Time, rollover time.Duration) (time.Time, error) {
	stop, err := InferStart(clock, ref, rollover)
	if err != nil {
		return time.Time{}, err
	}
	for !stop.After(start) {
		stop = stop.AddDate(0, 0, 1)
	}
	return stop, nil
}
