package therefore

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrBadDate marks a non-empty date string that could not be parsed.
// Callers log it and treat the value as "no date"; it never aborts a run.
var ErrBadDate = errors.New("unrecognized date format")

// Upstream dates arrive as /Date(1718000000000)/ or /Date(1718000000000+0200)/:
// milliseconds since the Unix epoch with an optional display offset.
var apiDateRegexp = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// ParseAPIDate parses an upstream timestamp string. An empty input returns
// the zero time with no error ("no date"). The millisecond payload is an
// absolute instant; an embedded offset only fixes the zone the time is
// expressed in.
func ParseAPIDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}

	if m := apiDateRegexp.FindStringSubmatch(raw); m != nil {
		millis, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
		}
		t := time.UnixMilli(millis).UTC()
		if m[2] != "" {
			t = t.In(fixedOffsetZone(m[2]))
		}
		return t, nil
	}

	// Some endpoints return ISO timestamps instead of the decorated form.
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
}

// fixedOffsetZone builds a zone from a ±hhmm suffix. The regexp guarantees
// four digits.
func fixedOffsetZone(suffix string) *time.Location {
	hours, _ := strconv.Atoi(suffix[1:3])
	minutes, _ := strconv.Atoi(suffix[3:5])
	seconds := hours*3600 + minutes*60
	if suffix[0] == '-' {
		seconds = -seconds
	}
	return time.FixedZone(suffix, seconds)
}
