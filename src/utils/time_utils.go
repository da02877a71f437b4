package utils

import (
	"strconv"
	"strings"
	"time"
)

// signalTimeLayouts are the timestamp shapes alert templates send in time_Of_Message.
var signalTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// ParseSignalTime parses an alert timestamp. Unix seconds and milliseconds
// are accepted as well.
func ParseSignalTime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range signalTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return time.Time{}, false
}

// FormatSignalTime renders an alert timestamp as "01/02/2006, 03:04:05 PM" in loc.
// Unparsable input is returned unchanged.
func FormatSignalTime(raw string, loc *time.Location) string {
	t, ok := ParseSignalTime(raw)
	if !ok {
		return raw
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("01/02/2006, 03:04:05 PM")
}
