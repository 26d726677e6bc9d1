package util

import (
	"strconv"
	"time"
)

// unixMilliFloor separates millisecond timestamps from second timestamps.
// Anything above it is read as milliseconds.
const unixMilliFloor = 1e11

// ParseTime accepts RFC3339, RFC3339Nano, unix seconds and unix
// milliseconds. It returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > unixMilliFloor {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}
