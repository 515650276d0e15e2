package core

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/types"
)

// HasDependencyFunc reports whether a resource is already satisfied outside
// the batch.
type HasDependencyFunc func(types.Resource) (bool, error)

// NoExternalState refuses every resource.
func NoExternalState(types.Resource) (bool, error) {
	return false, nil
}

// OrderCommands returns the commands in an order where every requirement is
// covered either by the external predicate or by earlier commands. When
// several commands provide the same resource, all of them must run before a
// command requiring it is released.
//
// Structurally equal commands collapse into one (first occurrence wins).
// Among commands that become ready in the same pass, input order is kept.
func OrderCommands(ctx context.Context, commands []*Command, hasDependency HasDependencyFunc) ([]*Command, error) {
	if hasDependency == nil {
		hasDependency = NoExternalState
	}
	unique, err := dedupeCommands(commands)
	if err != nil {
		return nil, err
	}
	logger := log.Ctx(ctx)
	logger.Debug().Int("commands", len(unique)).Msg("ordering commands")

	providers := map[types.Resource]int{}
	for _, cmd := range unique {
		for _, provide := range cmd.Provides() {
			providers[provide]++
		}
	}

	have := map[types.Resource]int{}
	scheduled := make([]bool, len(unique))
	ordered := make([]*Command, 0, len(unique))

	changed := true
	for changed {
		changed = false
		for i, cmd := range unique {
			if scheduled[i] {
				continue
			}
			ready, err := requirementsMet(cmd, providers, have, hasDependency)
			if err != nil {
				return nil, err
			}
			if !ready {
				continue
			}
			scheduled[i] = true
			ordered = append(ordered, cmd)
			for _, provide := range cmd.Provides() {
				have[provide]++
			}
			changed = true
		}
	}

	if len(ordered) != len(unique) {
		var stuck []*Command
		for i, cmd := range unique {
			if !scheduled[i] {
				stuck = append(stuck, cmd)
			}
		}
		return nil, unresolvedError(stuck)
	}
	if err := verifySameSet(unique, ordered); err != nil {
		return nil, err
	}

	displays := make([]string, 0, len(ordered))
	for _, cmd := range ordered {
		displays = append(displays, cmd.Display())
	}
	logger.Info().Strs("commands", displays).Msg("reordered commands")
	return ordered, nil
}

func requirementsMet(cmd *Command, providers map[types.Resource]int, have map[types.Resource]int, hasDependency HasDependencyFunc) (bool, error) {
	for _, req := range cmd.Requires() {
		if count := providers[req]; count > 0 && have[req] >= count {
			continue
		}
		ok, err := hasDependency(req)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func dedupeCommands(commands []*Command) ([]*Command, error) {
	buckets := map[uint64][]*Command{}
	unique := make([]*Command, 0, len(commands))
	for _, cmd := range commands {
		if cmd == nil {
			continue
		}
		if err := cmd.Err(); err != nil {
			return nil, err
		}
		cmd.Freeze()
		fingerprint := cmd.Fingerprint()
		duplicate := false
		for _, seen := range buckets[fingerprint] {
			if seen == cmd || seen.Equal(cmd) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		buckets[fingerprint] = append(buckets[fingerprint], cmd)
		unique = append(unique, cmd)
	}
	return unique, nil
}

func verifySameSet(incoming []*Command, ordered []*Command) error {
	seen := make(map[*Command]struct{}, len(ordered))
	for _, cmd := range ordered {
		seen[cmd] = struct{}{}
	}
	for _, cmd := range incoming {
		if _, ok := seen[cmd]; !ok {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("scheduler lost command: %s", cmd.Display()))
		}
	}
	if len(seen) != len(incoming) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("scheduler produced duplicate commands")
	}
	return nil
}
