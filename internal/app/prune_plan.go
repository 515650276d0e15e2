package app

import (
	"sort"
	"time"

	"aptly-reconcile/internal/types"
)

// BuildPrunePlan splits rotated snapshots into the ones to keep and the ones
// to drop. Published or referenced snapshots are always kept; otherwise a
// snapshot survives when it is among the newest KeepLast of its lineage or
// younger than KeepDays.
func BuildPrunePlan(snapshots []types.RotatedSnapshot, policy types.SnapshotRetentionPolicy, now time.Time) types.SnapshotPrunePlan {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	normalized := normalizeRetentionPolicy(policy)

	keepIDs := map[string]struct{}{}
	grouped := map[string][]types.RotatedSnapshot{}
	for _, snapshot := range snapshots {
		if snapshot.Published || snapshot.Referenced {
			keepIDs[snapshot.SnapshotID] = struct{}{}
		}
		if normalized.KeepDays > 0 && !snapshot.CreatedAt.IsZero() {
			cutoff := now.AddDate(0, 0, -normalized.KeepDays)
			if !snapshot.CreatedAt.Before(cutoff) {
				keepIDs[snapshot.SnapshotID] = struct{}{}
			}
		}
		grouped[snapshot.Lineage] = append(grouped[snapshot.Lineage], snapshot)
	}

	if normalized.KeepLast > 0 {
		for _, group := range grouped {
			sorted := append([]types.RotatedSnapshot(nil), group...)
			sort.Slice(sorted, func(i, j int) bool {
				if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
					return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
				}
				return sorted[i].SnapshotID < sorted[j].SnapshotID
			})
			limit := min(normalized.KeepLast, len(sorted))
			for i := 0; i < limit; i++ {
				keepIDs[sorted[i].SnapshotID] = struct{}{}
			}
		}
	}

	var keep []types.RotatedSnapshot
	var del []types.RotatedSnapshot
	for _, snapshot := range snapshots {
		if _, ok := keepIDs[snapshot.SnapshotID]; ok {
			keep = append(keep, snapshot)
		} else {
			del = append(del, snapshot)
		}
	}
	return types.SnapshotPrunePlan{Keep: keep, Delete: del}
}

func normalizeRetentionPolicy(policy types.SnapshotRetentionPolicy) types.SnapshotRetentionPolicy {
	normalized := policy
	if normalized.KeepLast < 0 {
		normalized.KeepLast = 0
	}
	if normalized.KeepDays < 0 {
		normalized.KeepDays = 0
	}
	return normalized
}
