package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit multiplier constants. The duration literal grammar is a decimal
// integer followed by one of these unit suffixes, case-insensitive.
const (
	unitNanosecond  = time.Nanosecond
	unitMicrosecond = time.Microsecond
	unitMillisecond = time.Millisecond
	unitSecond      = time.Second
	unitMinute      = time.Minute
	unitHour        = time.Hour
	unitDay         = 24 * time.Hour
)

// durationSuffixes is checked longest-suffix-first so "ms" is not mistaken
// for "s".
var durationSuffixes = []struct {
	suffix string
	unit   time.Duration
}{
	{"ns", unitNanosecond},
	{"us", unitMicrosecond},
	{"ms", unitMillisecond},
	{"s", unitSecond},
	{"m", unitMinute},
	{"h", unitHour},
	{"d", unitDay},
}

// ParseDuration parses a decimal integer plus a unit suffix from
// {ns,us,ms,s,m,h,d}, case-insensitive.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)

	for _, suf := range durationSuffixes {
		if !strings.HasSuffix(lower, suf.suffix) {
			continue
		}
		numStr := trimmed[:len(trimmed)-len(suf.suffix)]
		n, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid duration %q: must be non-negative", s)
		}
		return time.Duration(n) * suf.unit, nil
	}

	return 0, fmt.Errorf("invalid duration %q: missing unit suffix (one of ns,us,ms,s,m,h,d)", s)
}

// FormatDuration serializes a duration choosing the coarsest unit that
// preserves exactness (e.g. 90 seconds becomes "90s", not "1.5m"; 60
// seconds becomes "1m").
func FormatDuration(d time.Duration) string {
	// Checked from coarsest to finest; the first exact match wins.
	coarseToFine := []struct {
		suffix string
		unit   time.Duration
	}{
		{"d", unitDay},
		{"h", unitHour},
		{"m", unitMinute},
		{"s", unitSecond},
		{"ms", unitMillisecond},
		{"us", unitMicrosecond},
	}

	for _, u := range coarseToFine {
		if d%u.unit == 0 {
			return fmt.Sprintf("%d%s", d/u.unit, u.suffix)
		}
	}
	return fmt.Sprintf("%dns", d)
}
