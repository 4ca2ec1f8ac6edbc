package logger

import (
	"strings"
	"time"
)

// Took returns the elapsed time since start, rounded for log output.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds a duration to whole milliseconds so logged values stay compact.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings renders at most limit values as a comma separated
// preview. The second return reports whether values were cut off.
func SummarizeStrings(values []string, limit int) (string, bool) {
	switch {
	case limit <= 0:
		return "", len(values) > 0
	case len(values) > limit:
		return strings.Join(values[:limit], ", "), true
	default:
		return strings.Join(values, ", "), false
	}
}
