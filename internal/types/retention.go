package types

import "time"

// RotatedSnapshot is an archived generation left behind by a rotation.
type RotatedSnapshot struct {
	Lineage    string
	SnapshotID string
	CreatedAt  time.Time
	Published  bool
	Referenced bool
}

type SnapshotRetentionPolicy struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

type SnapshotPrunePlan struct {
	Keep   []RotatedSnapshot
	Delete []RotatedSnapshot
}
