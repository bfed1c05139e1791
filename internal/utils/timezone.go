package utils

import "time"

func loadLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		return time.UTC
	}
	return loc
}

// FormatInTimezone renders t in the outlet's local time, falling back to UTC
// for unknown zones.
func FormatInTimezone(t time.Time, tz string, layout string) string {
	return t.In(loadLocation(tz)).Format(layout)
}
