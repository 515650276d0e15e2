package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/core"
	"aptly-reconcile/internal/policies"
	"aptly-reconcile/internal/types"
)

// PruneSnapshots drops rotated snapshots the retention policy no longer
// keeps. A snapshot still referenced by another one survives this run and
// becomes eligible once its dependent is gone.
func (s Service) PruneSnapshots(ctx context.Context, req PruneRequest) (PruneResult, error) {
	if err := s.Preflight(ctx); err != nil {
		return PruneResult{}, err
	}
	state, err := s.readState(ctx)
	if err != nil {
		return PruneResult{}, err
	}
	snapshots := rotatedSnapshots(state)
	policy := types.SnapshotRetentionPolicy{
		KeepLast: req.KeepLast,
		KeepDays: req.KeepDays,
		DryRun:   req.DryRun,
	}
	now := timeNow(s.Clock)
	plan := BuildPrunePlan(snapshots, policy, now)
	logger := log.Ctx(ctx)
	logger.Info().
		Int("rotated", len(snapshots)).
		Int("keep", len(plan.Keep)).
		Int("delete", len(plan.Delete)).
		Msg("prune plan built")
	if policy.DryRun {
		for _, snapshot := range plan.Delete {
			logger.Info().Str("snapshot", snapshot.SnapshotID).Msg("would drop rotated snapshot")
		}
		return PruneResult{
			KeepCount:   len(plan.Keep),
			DeleteCount: len(plan.Delete),
			DryRun:      true,
		}, nil
	}

	commands := make([]*core.Command, 0, len(plan.Delete))
	for _, snapshot := range plan.Delete {
		commands = append(commands, core.NewCommand(s.aptlyBin(), "snapshot", "drop", snapshot.SnapshotID))
	}
	executed, err := core.NewExecutor(s.Runner, req.Pretend).Run(ctx, commands)
	deleted := make([]string, 0, executed)
	for _, snapshot := range plan.Delete[:executed] {
		deleted = append(deleted, snapshot.SnapshotID)
	}
	result := PruneResult{
		KeepCount:   len(plan.Keep),
		DeleteCount: len(deleted),
		Deleted:     deleted,
	}
	return result, err
}

func (s Service) aptlyBin() string {
	if s.AptlyBin == "" {
		return "aptly"
	}
	return s.AptlyBin
}

// rotatedSnapshots lists every snapshot carrying a generated rotated name.
// Names set through rotate_via are not recognized and never pruned.
func rotatedSnapshots(state *core.StateReader) []types.RotatedSnapshot {
	current := state.State()
	published := map[string]struct{}{}
	for _, served := range current.PublishSnapshots {
		for name := range served {
			published[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(current.Snapshots))
	for name := range current.Snapshots {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []types.RotatedSnapshot
	for _, name := range names {
		lineage, rotatedAt, ok := policies.ParseRotated(name)
		if !ok {
			continue
		}
		createdAt := state.SnapshotCreatedAt(name)
		if createdAt.IsZero() {
			createdAt = rotatedAt
		}
		_, isPublished := published[name]
		out = append(out, types.RotatedSnapshot{
			Lineage:    lineage,
			SnapshotID: name,
			CreatedAt:  createdAt,
			Published:  isPublished,
			Referenced: len(state.Dependents(name)) > 0,
		})
	}
	return out
}
