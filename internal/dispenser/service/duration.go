package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned by ParseTTL for anything that is not a
// non-negative integer followed by a known unit.
var ErrInvalidDuration = errors.New("invalid duration")

var ttlUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"y": 365 * 24 * time.Hour, "year": 365 * 24 * time.Hour, "years": 365 * 24 * time.Hour,
}

// ParseTTL parses a grant lifetime of the form "<integer><unit>", e.g. "30m",
// "2 hours", "1y".  Unit matching is case-insensitive and whitespace between
// number and unit is allowed.  Negative, fractional, unitless, or otherwise
// malformed input fails with ErrInvalidDuration.
func ParseTTL(s string) (time.Duration, error) {
	t := strings.ToLower(strings.TrimSpace(s))

	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	n, err := strconv.ParseInt(t[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	unit, ok := ttlUnits[strings.TrimSpace(t[i:])]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	return time.Duration(n) * unit, nil
}
