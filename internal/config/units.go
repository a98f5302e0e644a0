package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	defaultWaitMin = time.Second
	defaultWaitMax = 60 * time.Second
)

// durationUnits maps the single-letter unit suffixes accepted by spec §6
// ("Unit parsing: durations {s,m,h,d,w} -> seconds") to a multiplier
// applied to the numeric prefix, in seconds.
var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseDuration parses a `<int><unit>` expression (unit in s/m/h/d/w)
// into a time.Duration.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit, ok := durationUnits[raw[len(raw)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid duration unit in %q (expected one of s,m,h,d,w)", raw)
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration value in %q: %w", raw, err)
	}
	return time.Duration(n) * unit, nil
}

// sizeUnits maps the single-letter unit suffixes accepted by spec §6
// ("sizes {k,m,g} -> KiB (k=1, m=1024, g=1048576)") to a KiB multiplier.
var sizeUnits = map[byte]int{
	'k': 1,
	'm': 1024,
	'g': 1048576,
}

// ParseSizeKiB parses a `<int><unit>` expression (unit in k/m/g) into a
// size in KiB, matching the --limit-upload/--limit-download units the
// snapshot engine expects.
func ParseSizeKiB(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier, ok := sizeUnits[strings.ToLower(raw[len(raw)-1:])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid size unit in %q (expected one of k,m,g)", raw)
	}
	n, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid size value in %q: %w", raw, err)
	}
	return n * multiplier, nil
}
