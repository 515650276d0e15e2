package policies

import (
	"regexp"
	"strings"
	"time"

	"aptly-reconcile/internal/types"
)

const rotatedMarker = "-rotated-"

var rotatedPattern = regexp.MustCompile(`^(.+)-rotated-(\d{8}T\d{4}Z)$`)

// IsRolling reports whether a snapshot keeps a fixed name across updates.
// Timestamped snapshots get a fresh name every period and are never rotated.
func IsRolling(name string) bool {
	return !types.HasPlaceholder(name)
}

// RotatedName is the name a rolling snapshot is moved to before it is
// rebuilt. rotateVia overrides the generated name and may carry a
// placeholder of its own.
func RotatedName(name string, rotateVia string, now time.Time) string {
	stamp := now.UTC().Format(types.TimestampLayout)
	if via := strings.TrimSpace(rotateVia); via != "" {
		return strings.ReplaceAll(via, types.TimestampPlaceholder, stamp)
	}
	return name + rotatedMarker + stamp
}

// ArchiveName expands an archive-on-update template. The current time is
// used unrounded.
func ArchiveName(template string, now time.Time) string {
	return strings.ReplaceAll(template, types.TimestampPlaceholder, now.UTC().Format(types.TimestampLayout))
}

// ArchivePrefix is the part of a snapshot name shared by every period's
// concrete name.
func ArchivePrefix(name string) string {
	return strings.TrimSuffix(name, types.TimestampPlaceholder)
}

// ParseRotated splits a generated rotated name into its lineage and the
// time it was rotated.
func ParseRotated(name string) (string, time.Time, bool) {
	match := rotatedPattern.FindStringSubmatch(name)
	if match == nil {
		return "", time.Time{}, false
	}
	stamp, err := time.Parse(types.TimestampLayout, match[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return match[1], stamp.UTC(), true
}
