package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/policies"
	"aptly-reconcile/internal/types"
)

const (
	reloadStateFunction = "reload-state"

	tokenAllRotated = "all-snapshots-rotated"
	tokenAllRebuilt = "all-snapshots-rebuilt"
)

func renamedToken(name string) string   { return "renamed-" + name }
func readinessToken(name string) string { return "readiness-for-" + name }
func rebuiltToken(name string) string   { return "rebuilt-" + name }

// SnapshotUpdate plans the update of declared snapshots. Rolling snapshots
// that exist are rotated together with everything derived from them;
// timestamped or missing ones fall back to their create plan.
func (p *Planner) SnapshotUpdate(ctx context.Context, names []string) ([]*Command, error) {
	var commands []*Command
	var rolling []string
	for _, name := range names {
		if _, ok := p.Config.Snapshots[name]; !ok {
			return nil, snapshotNotDeclared(name)
		}
		if policies.IsRolling(name) && p.State.HasSnapshot(name) {
			rolling = append(rolling, name)
			continue
		}
		created, err := p.SnapshotCreate(ctx, name, false)
		if err != nil {
			return nil, err
		}
		commands = append(commands, created...)
	}
	if len(rolling) == 0 {
		return commands, nil
	}
	rotated, err := p.RotateSnapshots(ctx, rolling)
	if err != nil {
		return nil, err
	}
	return append(commands, rotated...), nil
}

// RotateSnapshots builds the rename, reload, recreate, reload, republish
// plan for targets and all of their declared rolling dependents. Phase
// order comes only from virtual edges.
func (p *Planner) RotateSnapshots(ctx context.Context, targets []string) ([]*Command, error) {
	affected := p.affectedSnapshots(ctx, targets)
	if len(affected) == 0 {
		return nil, nil
	}
	log.Ctx(ctx).Info().Strs("snapshots", affected).Msg("rotating snapshots")

	inRotation := map[string]struct{}{}
	for _, name := range affected {
		inRotation[name] = struct{}{}
	}

	var commands []*Command
	now := p.now()

	rotatedBarrier := p.reloadBarrier("rotated")
	rotatedBarrier.Provide(types.ResourceVirtual, tokenAllRotated)
	for _, name := range affected {
		rotatedName := policies.RotatedName(name, p.Config.Snapshots[name].RotateVia, now)
		if p.State.HasSnapshot(rotatedName) {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(fmt.Sprintf("cannot update snapshot %s: rotated name %s already exists", name, rotatedName))
		}
		rename := p.aptly("snapshot", "rename", name, rotatedName)
		rename.Provide(types.ResourceVirtual, renamedToken(name))
		rename.Provide(types.ResourceSnapshot, rotatedName)
		rotatedBarrier.Require(types.ResourceVirtual, renamedToken(name))
		commands = append(commands, rename)
	}
	commands = append(commands, rotatedBarrier)

	rebuiltBarrier := p.reloadBarrier("rebuilt")
	rebuiltBarrier.Provide(types.ResourceVirtual, tokenAllRebuilt)
	for _, name := range affected {
		recreated, err := p.SnapshotCreate(ctx, name, true)
		if err != nil {
			return nil, err
		}
		for _, cmd := range recreated {
			dropped := cmd.dropRequires(func(r types.Resource) bool {
				if r.Kind != types.ResourceSnapshot {
					return false
				}
				_, ok := inRotation[r.Name]
				return ok
			})
			for _, source := range dropped {
				cmd.Require(types.ResourceVirtual, readinessToken(source.Name))
			}
			cmd.Require(types.ResourceVirtual, tokenAllRotated)
			cmd.Provide(types.ResourceVirtual, readinessToken(name))
			cmd.Provide(types.ResourceVirtual, rebuiltToken(name))
			commands = append(commands, cmd)
		}
		rebuiltBarrier.Require(types.ResourceVirtual, rebuiltToken(name))
	}
	commands = append(commands, rebuiltBarrier)

	republish, err := p.republishAffected(ctx, inRotation)
	if err != nil {
		return nil, err
	}
	return append(commands, republish...), nil
}

// affectedSnapshots returns targets followed by their transitive dependents,
// each once. Dependents that cannot be rebuilt from config are reported and
// left alone.
func (p *Planner) affectedSnapshots(ctx context.Context, targets []string) []string {
	seen := map[string]struct{}{}
	var affected []string
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		affected = append(affected, name)
	}
	for _, target := range targets {
		add(target)
	}
	for _, target := range targets {
		for _, dependent := range p.State.DependentsOfSnapshot(target) {
			if _, declared := p.Config.Snapshots[dependent]; !declared || !policies.IsRolling(dependent) {
				log.Ctx(ctx).Warn().
					Str("snapshot", dependent).
					Str("source", target).
					Msg("dependent snapshot is not a declared rolling snapshot, leaving it alone")
				continue
			}
			add(dependent)
		}
	}
	return affected
}

func (p *Planner) republishAffected(ctx context.Context, affected map[string]struct{}) ([]*Command, error) {
	names := make([]string, 0, len(p.Config.Publishes))
	for name := range p.Config.Publishes {
		names = append(names, name)
	}
	sort.Strings(names)

	var commands []*Command
	for _, name := range names {
		for _, entry := range p.Config.Publishes[name] {
			if !entry.AutomaticUpdate {
				continue
			}
			current, ok := p.State.PublishSnapshots(types.PublishKey(name, entry.Distribution))
			if !ok || !intersects(current, affected) {
				continue
			}
			planned, err := p.publishUpdate(ctx, name, entry, publishUpdateOptions{ignoreExisting: true, skipArchive: true})
			if err != nil {
				return nil, err
			}
			for _, cmd := range planned {
				cmd.Require(types.ResourceVirtual, tokenAllRebuilt)
				commands = append(commands, cmd)
			}
		}
	}
	return commands, nil
}

// reloadBarrier refreshes the state view once everything it requires ran.
func (p *Planner) reloadBarrier(phase string) *Command {
	state := p.State
	return NewFunctionCommand(reloadStateFunction, func(ctx context.Context) error {
		return state.Reload(ctx)
	}, phase)
}

func intersects(names []string, set map[string]struct{}) bool {
	for _, name := range names {
		if _, ok := set[name]; ok {
			return true
		}
	}
	return false
}
