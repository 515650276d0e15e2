package types

import "strings"

// TimestampPlaceholder is replaced by the rounded timestamp in snapshot names.
const TimestampPlaceholder = "%T"

// TimestampLayout renders timestamps as YYYYMMDDTHHMMZ.
const TimestampLayout = "20060102T1504Z"

// TimestampSpec is a recurrence rule: a daily HH:MM boundary, optionally
// restricted to one weekday.
type TimestampSpec struct {
	Time         string
	RepeatWeekly string
}

func (s TimestampSpec) IsWeekly() bool {
	return strings.TrimSpace(s.RepeatWeekly) != ""
}

// HasPlaceholder reports whether a name is timestamped.
func HasPlaceholder(name string) bool {
	return strings.Contains(name, TimestampPlaceholder)
}
