package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/policies"
	"aptly-reconcile/internal/types"
)

// publishUpdateOptions are used by rotation: the switch is forced even when
// names did not change, and archives are skipped because the rotated names
// already keep the previous content.
type publishUpdateOptions struct {
	ignoreExisting bool
	skipArchive    bool
}

// PublishCreate plans one publish entry of endpoint name. Publishing from
// another endpoint that is not published yet is deferred, not failed.
func (p *Planner) PublishCreate(ctx context.Context, name string, entry types.Publish) ([]*Command, error) {
	assert.NotEmpty(ctx, name, "publish endpoint must be set")
	key := types.PublishKey(name, entry.Distribution)
	if p.State.HasPublish(key) {
		log.Ctx(ctx).Debug().Str("publish", key).Msg("publish exists, skipping create")
		return nil, nil
	}

	cmd := p.aptly("publish")
	var sources []string
	switch src := entry.Source.(type) {
	case types.SnapshotsSource:
		cmd.Append("snapshot")
		for _, ref := range src.Snapshots {
			resolved, err := p.Namer.RefName(ref)
			if err != nil {
				return nil, err
			}
			sources = append(sources, resolved)
			cmd.Require(types.ResourceSnapshot, resolved)
		}
		if err := checkComponents(key, entry, sources); err != nil {
			return nil, err
		}
	case types.RepoPublishSource:
		cmd.Append("repo")
		sources = append(sources, src.Repo)
		cmd.Require(types.ResourceRepo, src.Repo)
	case types.ChainedPublishSource:
		current, ok := p.State.PublishSnapshots(src.Key())
		if !ok {
			log.Ctx(ctx).Error().
				Str("publish", key).
				Str("source", src.Key()).
				Msg("source publish does not exist yet, deferring until it is published")
			return nil, nil
		}
		// Served snapshots come back sorted by name, so components pair
		// with them in that order, not in the source entry's order.
		if err := checkComponents(key, entry, current); err != nil {
			return nil, err
		}
		cmd.Append("snapshot")
		for _, snapshot := range current {
			sources = append(sources, snapshot)
			cmd.Require(types.ResourceSnapshot, snapshot)
		}
		cmd.Require(types.ResourcePublish, src.Key())
	default:
		return nil, invalidSource(key, "publish needs exactly one of snapshots, repo or publish")
	}

	cmd.Append(publishOptions(entry)...)
	cmd.Append(sources...)
	cmd.Append(name)
	cmd.Provide(types.ResourcePublish, key)
	return []*Command{cmd}, nil
}

func checkComponents(key string, entry types.Publish, sources []string) error {
	if len(entry.Components) == 0 || len(entry.Components) == len(sources) {
		return nil
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("publish %s has %d components for %d snapshots", key, len(entry.Components), len(sources)))
}

func publishOptions(entry types.Publish) []string {
	var options []string
	if len(entry.Architectures) > 0 {
		options = append(options, "-architectures="+strings.Join(entry.Architectures, ","))
	}
	if len(entry.Components) > 0 {
		options = append(options, "-component="+strings.Join(entry.Components, ","))
	}
	if entry.Distribution != "" {
		options = append(options, "-distribution="+entry.Distribution)
	}
	if entry.Label != "" {
		options = append(options, "-label="+entry.Label)
	}
	if entry.Origin != "" {
		options = append(options, "-origin="+entry.Origin)
	}
	if entry.GPGKey != "" {
		options = append(options, "-gpg-key="+entry.GPGKey)
	}
	if entry.SkipContents {
		options = append(options, "-skip-contents=true")
	}
	if entry.SkipSigning {
		options = append(options, "-skip-signing=true")
	}
	return options
}

// PublishUpdate switches an endpoint to its desired snapshots. An endpoint
// that is not published yet gets its create plan instead.
func (p *Planner) PublishUpdate(ctx context.Context, name string, entry types.Publish) ([]*Command, error) {
	return p.publishUpdate(ctx, name, entry, publishUpdateOptions{})
}

func (p *Planner) publishUpdate(ctx context.Context, name string, entry types.Publish, opts publishUpdateOptions) ([]*Command, error) {
	key := types.PublishKey(name, entry.Distribution)
	logger := log.Ctx(ctx)

	if src, ok := entry.Source.(types.RepoPublishSource); ok {
		cmd := p.aptly("publish", "update")
		cmd.Append(signingOptions(entry)...)
		cmd.Append(entry.Distribution, name)
		cmd.Require(types.ResourcePublish, key)
		cmd.Require(types.ResourceRepo, src.Repo)
		return []*Command{cmd}, nil
	}

	current, published := p.State.PublishSnapshots(key)
	if !published {
		logger.Info().Str("publish", key).Msg("publish does not exist yet, planning create")
		return p.PublishCreate(ctx, name, entry)
	}

	desired, refs, err := p.desiredSnapshots(ctx, key, entry)
	if err != nil || desired == nil {
		return nil, err
	}
	if err := checkComponents(key, entry, desired); err != nil {
		return nil, err
	}
	if sameNames(desired, current) && !opts.ignoreExisting {
		logger.Debug().Str("publish", key).Msg("publish is up to date")
		return nil, nil
	}
	logger.Info().
		Str("publish", key).
		Strs("current", current).
		Strs("desired", desired).
		Msg("publish needs a switch")

	var commands []*Command
	switchCmd := p.aptly("publish", "switch")
	if len(entry.Components) > 0 {
		switchCmd.Append("-component=" + strings.Join(entry.Components, ","))
	}
	if entry.SkipContents {
		switchCmd.Append("-skip-contents=true")
	}
	switchCmd.Append(signingOptions(entry)...)
	switchCmd.Append(entry.Distribution, name)
	switchCmd.Append(desired...)
	switchCmd.Require(types.ResourcePublish, key)
	for _, snapshot := range desired {
		switchCmd.Require(types.ResourceSnapshot, snapshot)
	}

	if !opts.skipArchive {
		for _, ref := range refs {
			clone := p.archiveCommand(ctx, ref, current)
			if clone == nil {
				continue
			}
			commands = append(commands, clone)
			for _, provided := range clone.Provides() {
				switchCmd.Require(provided.Kind, provided.Name)
			}
		}
	}
	return append(commands, switchCmd), nil
}

// desiredSnapshots resolves what the entry should serve. For chained
// entries the referenced entry's refs are returned for archiving. A nil
// result without error means the source endpoint is not published yet.
func (p *Planner) desiredSnapshots(ctx context.Context, key string, entry types.Publish) ([]string, []types.SnapshotRef, error) {
	switch src := entry.Source.(type) {
	case types.SnapshotsSource:
		desired := make([]string, 0, len(src.Snapshots))
		for _, ref := range src.Snapshots {
			resolved, err := p.Namer.RefName(ref)
			if err != nil {
				return nil, nil, err
			}
			desired = append(desired, resolved)
		}
		return desired, src.Snapshots, nil
	case types.ChainedPublishSource:
		served, ok := p.State.PublishSnapshots(src.Key())
		if !ok {
			log.Ctx(ctx).Error().
				Str("publish", key).
				Str("source", src.Key()).
				Msg("source publish does not exist yet, deferring until it is published")
			return nil, nil, nil
		}
		var refs []types.SnapshotRef
		for _, candidate := range p.Config.Publishes[src.Endpoint] {
			if candidate.Distribution != src.Distribution {
				continue
			}
			if snapshots, ok := candidate.Source.(types.SnapshotsSource); ok {
				refs = snapshots.Snapshots
			}
			break
		}
		return served, refs, nil
	default:
		return nil, nil, invalidSource(key, "publish needs exactly one of snapshots, repo or publish")
	}
}

// archiveCommand clones the currently served snapshot of ref's lineage
// before the switch replaces it. The longest served name with the lineage
// prefix wins.
func (p *Planner) archiveCommand(ctx context.Context, ref types.SnapshotRef, current []string) *Command {
	if ref.ArchiveOnUpdate == "" {
		return nil
	}
	archive := policies.ArchiveName(ref.ArchiveOnUpdate, p.now())
	if p.State.HasSnapshot(archive) {
		return nil
	}
	prefix := policies.ArchivePrefix(ref.Name)
	candidates := append([]string(nil), current...)
	sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, candidate := range candidates {
		if strings.HasPrefix(candidate, prefix) {
			return p.cloneSnapshot(candidate, archive)
		}
	}
	log.Ctx(ctx).Warn().
		Str("snapshot", ref.Name).
		Str("archive", archive).
		Msg("no served snapshot to archive")
	return nil
}

// signingOptions carries the signing choice of the entry over to commands
// that re-sign an existing publish.
func signingOptions(entry types.Publish) []string {
	if entry.SkipSigning {
		return []string{"-skip-signing=true"}
	}
	if entry.GPGKey != "" {
		return []string{"-gpg-key=" + entry.GPGKey}
	}
	return nil
}

func sameNames(a []string, b []string) bool {
	left := map[string]struct{}{}
	for _, name := range a {
		left[name] = struct{}{}
	}
	right := map[string]struct{}{}
	for _, name := range b {
		right[name] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for name := range left {
		if _, ok := right[name]; !ok {
			return false
		}
	}
	return true
}
