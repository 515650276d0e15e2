package app

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"aptly-reconcile/internal/types"
)

func TestBuildPrunePlanKeepLastPerLineage(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	snapshots := []types.RotatedSnapshot{
		{SnapshotID: "alpha-rotated-20260202T1000Z", Lineage: "alpha", CreatedAt: now.Add(-2 * time.Hour)},
		{SnapshotID: "alpha-rotated-20260202T1100Z", Lineage: "alpha", CreatedAt: now.Add(-1 * time.Hour)},
		{SnapshotID: "beta-rotated-20260202T0900Z", Lineage: "beta", CreatedAt: now.Add(-3 * time.Hour)},
		{SnapshotID: "beta-rotated-20260202T1130Z", Lineage: "beta", CreatedAt: now.Add(-30 * time.Minute)},
	}
	policy := types.SnapshotRetentionPolicy{KeepLast: 1}

	plan := BuildPrunePlan(snapshots, policy, now)

	require.ElementsMatch(t, []string{"alpha-rotated-20260202T1100Z", "beta-rotated-20260202T1130Z"}, snapshotIDs(plan.Keep))
	require.ElementsMatch(t, []string{"alpha-rotated-20260202T1000Z", "beta-rotated-20260202T0900Z"}, snapshotIDs(plan.Delete))
}

func TestBuildPrunePlanKeepDays(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	snapshots := []types.RotatedSnapshot{
		{SnapshotID: "x-rotated-20260201T1200Z", Lineage: "x", CreatedAt: now.AddDate(0, 0, -1)},
		{SnapshotID: "x-rotated-20260123T1200Z", Lineage: "x", CreatedAt: now.AddDate(0, 0, -10)},
	}
	policy := types.SnapshotRetentionPolicy{KeepDays: 3}

	plan := BuildPrunePlan(snapshots, policy, now)

	require.ElementsMatch(t, []string{"x-rotated-20260201T1200Z"}, snapshotIDs(plan.Keep))
	require.ElementsMatch(t, []string{"x-rotated-20260123T1200Z"}, snapshotIDs(plan.Delete))
}

func TestBuildPrunePlanProtectsPublishedAndReferenced(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -30)
	snapshots := []types.RotatedSnapshot{
		{SnapshotID: "a-rotated-20260103T1200Z", Lineage: "a", CreatedAt: old, Published: true},
		{SnapshotID: "b-rotated-20260103T1200Z", Lineage: "b", CreatedAt: old, Referenced: true},
		{SnapshotID: "c-rotated-20260103T1200Z", Lineage: "c", CreatedAt: old},
	}

	plan := BuildPrunePlan(snapshots, types.SnapshotRetentionPolicy{}, now)

	require.ElementsMatch(t, []string{"a-rotated-20260103T1200Z", "b-rotated-20260103T1200Z"}, snapshotIDs(plan.Keep))
	require.ElementsMatch(t, []string{"c-rotated-20260103T1200Z"}, snapshotIDs(plan.Delete))
}

func TestBuildPrunePlanDeterministicOrdering(t *testing.T) {
	now := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	snapshots := []types.RotatedSnapshot{
		{SnapshotID: "alpha-ccc", Lineage: "alpha", CreatedAt: now.Add(-1 * time.Hour)},
		{SnapshotID: "alpha-bbb", Lineage: "alpha", CreatedAt: now.Add(-1 * time.Hour)},
		{SnapshotID: "alpha-aaa", Lineage: "alpha", CreatedAt: now.Add(-1 * time.Hour)},
	}
	policy := types.SnapshotRetentionPolicy{KeepLast: 1, KeepDays: -4}

	plan := BuildPrunePlan(snapshots, policy, now)
	kept := snapshotIDs(plan.Keep)
	sort.Strings(kept)
	if diff := cmp.Diff([]string{"alpha-aaa"}, kept); diff != "" {
		t.Fatalf("unexpected kept snapshots (-want +got):\n%s", diff)
	}
}

func snapshotIDs(items []types.RotatedSnapshot) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.SnapshotID)
	}
	return ids
}
