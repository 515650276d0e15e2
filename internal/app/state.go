package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"aptly-reconcile/internal/shared"
	"aptly-reconcile/internal/types"
)

// InspectState reads one fresh view of the backend.
func (s Service) InspectState(ctx context.Context) (StateResult, error) {
	state, err := s.readState(ctx)
	if err != nil {
		return StateResult{}, err
	}
	return StateResult{State: state.State()}, nil
}

// WriteState renders a state view in a stable, line oriented layout.
func WriteState(w io.Writer, state types.BackendState) error {
	var b strings.Builder
	section := func(title string, names map[string]struct{}) {
		fmt.Fprintf(&b, "%s:\n", title)
		for _, name := range shared.SortedKeys(names) {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}
	section("gpg keys", state.GPGKeys)
	section("mirrors", state.Mirrors)
	section("repos", state.Repos)
	section("snapshots", state.Snapshots)
	section("publishes", state.Publishes)

	b.WriteString("snapshot sources:\n")
	for _, name := range shared.SortedKeys(state.SnapshotSources) {
		if len(state.SnapshotSources[name]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s <- %s\n", name, strings.Join(shared.SortedKeys(state.SnapshotSources[name]), ", "))
	}
	b.WriteString("publish snapshots:\n")
	for _, key := range shared.SortedKeys(state.PublishSnapshots) {
		fmt.Fprintf(&b, "  %s -> %s\n", key, strings.Join(shared.SortedKeys(state.PublishSnapshots[key]), ", "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
