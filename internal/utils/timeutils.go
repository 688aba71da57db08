package utils

import (
	"fmt"
	"strings"
	"time"
)

// isoLayouts are tried in order; layouts without a zone are interpreted as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISOTimestamp parses an ISO-8601 value into fractional epoch seconds.
// Timezone-naive values are treated as UTC.
func ParseISOTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return float64(t.UnixNano()) / 1e9, nil
		}
	}
	return 0, fmt.Errorf("parse time %q: unsupported layout", value)
}

// FormatEpoch renders fractional epoch seconds as RFC3339 with nanoseconds in UTC.
func FormatEpoch(seconds float64) string {
	return time.Unix(0, int64(seconds*1e9)).UTC().Format(time.RFC3339Nano)
}
