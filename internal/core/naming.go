package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"aptly-reconcile/internal/types"
)

var isoWeekdays = map[string]int{
	"mon": 1,
	"tue": 2,
	"wed": 3,
	"thu": 4,
	"fri": 5,
	"sat": 6,
	"sun": 7,
}

// backRefEpsilon forces each flooring step of a back reference onto a
// strictly earlier boundary.
const backRefEpsilon = time.Second

// RoundTimestamp floors now to the latest boundary of spec at or before it.
// Times are handled in UTC.
func RoundTimestamp(spec types.TimestampSpec, now time.Time) (time.Time, error) {
	hour, minute, err := parseClock(spec.Time)
	if err != nil {
		return time.Time{}, err
	}
	now = now.UTC()
	clock := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
	if !spec.IsWeekly() {
		return roundDaily(now, clock), nil
	}
	day, ok := isoWeekdays[strings.ToLower(strings.TrimSpace(spec.RepeatWeekly))]
	if !ok {
		return time.Time{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid repeat-weekly day: %q", spec.RepeatWeekly))
	}
	return roundWeekly(now, day, clock), nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(types.TimestampLayout)
}

// ExpandTimestampedName replaces the placeholder in name with the rounded
// timestamp. Names without a placeholder are returned as is and spec is not
// evaluated.
func ExpandTimestampedName(name string, spec *types.TimestampSpec, date time.Time) (string, error) {
	if !types.HasPlaceholder(name) {
		return name, nil
	}
	if spec == nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("snapshot %s is timestamped but has no timestamp config", name))
	}
	rounded, err := RoundTimestamp(*spec, date)
	if err != nil {
		return "", err
	}
	return strings.Replace(name, types.TimestampPlaceholder, FormatTimestamp(rounded), 1), nil
}

func roundDaily(date time.Time, clock time.Duration) time.Time {
	raster := date.Add(-clock)
	midnight := time.Date(raster.Year(), raster.Month(), raster.Day(), 0, 0, 0, 0, raster.Location())
	return midnight.Add(clock)
}

func roundWeekly(date time.Time, isoDay int, clock time.Duration) time.Time {
	offset := time.Duration(isoDay-1)*24*time.Hour + clock
	raster := date.Add(-offset)
	year, week := raster.ISOWeek()
	return isoToGregorian(year, week, 1, raster.Location()).Add(offset)
}

// isoFirstWeekStart is the Monday on or before January 4th.
func isoFirstWeekStart(year int, loc *time.Location) time.Time {
	fourth := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	return fourth.AddDate(0, 0, -(isoWeekday(fourth) - 1))
}

func isoToGregorian(year int, week int, day int, loc *time.Location) time.Time {
	return isoFirstWeekStart(year, loc).AddDate(0, 0, (week-1)*7+day-1)
}

func isoWeekday(t time.Time) int {
	day := int(t.Weekday())
	if day == 0 {
		return 7
	}
	return day
}

func parseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	invalid := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("timestamp config has no valid time entry: %q", value))
	if len(parts) < 2 {
		return 0, 0, invalid
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, invalid
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, invalid
	}
	return hour, minute, nil
}

// Namer resolves declared snapshot names and references against the
// recurrence rules of the config.
type Namer struct {
	Config types.Config
	Now    func() time.Time
}

func NewNamer(cfg types.Config, now func() time.Time) Namer {
	return Namer{Config: cfg, Now: now}
}

func (n Namer) now() time.Time {
	if n.Now == nil {
		return time.Now().UTC()
	}
	return n.Now().UTC()
}

// SnapshotName expands a declared snapshot name for the current period.
func (n Namer) SnapshotName(name string) (string, error) {
	if !types.HasPlaceholder(name) {
		return name, nil
	}
	snapshot, ok := n.Config.Snapshots[name]
	if !ok {
		return "", snapshotNotDeclared(name)
	}
	return ExpandTimestampedName(name, snapshot.Timestamp, n.now())
}

// RefName resolves a snapshot reference. A back reference N selects the
// Nth most recent boundary of the referenced snapshot's own rule.
func (n Namer) RefName(ref types.SnapshotRef) (string, error) {
	if ref.BackRef == nil {
		return ref.Name, nil
	}
	if *ref.BackRef < 0 {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("negative timestamp reference for %s", ref.Name))
	}
	reference, ok := n.Config.Snapshots[ref.Name]
	if !ok {
		return "", snapshotNotDeclared(ref.Name)
	}
	if !types.HasPlaceholder(ref.Name) {
		return ref.Name, nil
	}
	if reference.Timestamp == nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("snapshot %s is timestamped but has no timestamp config", ref.Name))
	}
	pointer := n.now()
	for i := 0; i <= *ref.BackRef; i++ {
		rounded, err := RoundTimestamp(*reference.Timestamp, pointer)
		if err != nil {
			return "", err
		}
		pointer = rounded.Add(-backRefEpsilon)
	}
	pointer = pointer.Add(backRefEpsilon)
	return strings.Replace(ref.Name, types.TimestampPlaceholder, FormatTimestamp(pointer), 1), nil
}

func snapshotNotDeclared(name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("snapshot not found in config: %s", name))
}
