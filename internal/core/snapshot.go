package core

import (
	"context"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/types"
)

// SnapshotCreate plans one declared snapshot under its resolved name.
// ignoreExisting forces a command even when the name is already taken,
// which rotation relies on after the old snapshot was renamed away.
func (p *Planner) SnapshotCreate(ctx context.Context, name string, ignoreExisting bool) ([]*Command, error) {
	assert.NotEmpty(ctx, name, "snapshot name must be set")
	snapshot, ok := p.Config.Snapshots[name]
	if !ok {
		return nil, snapshotNotDeclared(name)
	}
	resolved, err := p.Namer.SnapshotName(name)
	if err != nil {
		return nil, err
	}
	if p.State.HasSnapshot(resolved) && !ignoreExisting {
		log.Ctx(ctx).Debug().Str("snapshot", resolved).Msg("snapshot exists, skipping create")
		return nil, nil
	}
	cmd, err := p.snapshotCommand(resolved, snapshot.Source)
	if err != nil {
		return nil, err
	}
	return []*Command{cmd}, nil
}

func (p *Planner) snapshotCommand(resolved string, source types.SnapshotSource) (*Command, error) {
	var cmd *Command
	switch src := source.(type) {
	case types.MirrorSource:
		cmd = p.aptly("snapshot", "create", resolved, "from", "mirror", src.Mirror)
		cmd.Require(types.ResourceMirror, src.Mirror)
	case types.RepoSource:
		cmd = p.aptly("snapshot", "create", resolved, "from", "repo", src.Repo)
		cmd.Require(types.ResourceRepo, src.Repo)
	case types.FilterSource:
		from, err := p.Namer.RefName(src.Source)
		if err != nil {
			return nil, err
		}
		cmd = p.aptly("snapshot", "filter", from, resolved, src.Query)
		cmd.Require(types.ResourceSnapshot, from)
	case types.MergeSource:
		if len(src.Sources) == 0 {
			return nil, invalidSource(resolved, "merge needs at least one source")
		}
		cmd = p.aptly("snapshot", "merge", resolved)
		for _, ref := range src.Sources {
			from, err := p.Namer.RefName(ref)
			if err != nil {
				return nil, err
			}
			cmd.Append(from)
			cmd.Require(types.ResourceSnapshot, from)
		}
	default:
		return nil, invalidSource(resolved, "no snapshot source configured")
	}
	cmd.Provide(types.ResourceSnapshot, resolved)
	return cmd, nil
}

// cloneSnapshot copies origin under a new name by merging it alone.
func (p *Planner) cloneSnapshot(origin string, dest string) *Command {
	cmd := p.aptly("snapshot", "merge", dest, origin)
	cmd.Require(types.ResourceSnapshot, origin)
	cmd.Provide(types.ResourceSnapshot, dest)
	return cmd
}
