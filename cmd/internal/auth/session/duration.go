package session

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// Documented defaults for the duration settings.
const (
	DefaultAccessExpiration  = "15m"
	DefaultRefreshExpiration = "30d"
)

var durationRe = regexp.MustCompile(`^(\d+)([smhd])$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseDuration parses "<digits><unit>" with unit one of s, m, h, d.
// Any other input, or a value that overflows time.Duration, yields fallback.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return fallback
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return fallback
	}
	unit := durationUnits[m[2]]
	if n > math.MaxInt64/int64(unit) {
		return fallback
	}
	return time.Duration(n) * unit
}
