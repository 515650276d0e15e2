package core

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/ports"
	"aptly-reconcile/internal/types"
)

var (
	// "  test-snapshot [snapshot]"
	snapshotSourcePattern = regexp.MustCompile(`^\s+([\w.+~-]+)\s\[snapshot\]`)
	// "  main: test-snapshot [snapshot]"
	publishSourcePattern = regexp.MustCompile(`^\s+[\w.+~-]+:\s([\w.+~-]+)\s\[snapshot\]`)
)

// StateReader is the single source of truth for what exists in the backend.
// It reads everything once and serves that view until Reload is called.
type StateReader struct {
	Runner   ports.CommandRunnerPort
	Keyring  ports.KeyringPort
	AptlyBin string

	state  types.BackendState
	loaded bool
}

func NewStateReader(runner ports.CommandRunnerPort, keyring ports.KeyringPort, aptlyBin string) *StateReader {
	if strings.TrimSpace(aptlyBin) == "" {
		aptlyBin = "aptly"
	}
	return &StateReader{
		Runner:   runner,
		Keyring:  keyring,
		AptlyBin: aptlyBin,
		state:    types.NewBackendState(),
	}
}

// Read loads every set and both relationship maps.
func (r *StateReader) Read(ctx context.Context) error {
	if r.Runner == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("state reader requires a command runner")
	}
	state := types.NewBackendState()
	var err error
	if state.GPGKeys, err = r.GPGKeys(ctx); err != nil {
		return err
	}
	if state.Repos, err = r.List(ctx, types.ResourceRepo); err != nil {
		return err
	}
	if state.Mirrors, err = r.List(ctx, types.ResourceMirror); err != nil {
		return err
	}
	if state.Snapshots, err = r.List(ctx, types.ResourceSnapshot); err != nil {
		return err
	}
	if state.SnapshotSources, err = r.readSnapshotMap(ctx, state.Snapshots, state.SnapshotCreated); err != nil {
		return err
	}
	if state.Publishes, err = r.List(ctx, types.ResourcePublish); err != nil {
		return err
	}
	if state.PublishSnapshots, err = r.readPublishMap(ctx, state.Publishes); err != nil {
		return err
	}
	r.state = state
	r.loaded = true
	log.Ctx(ctx).Debug().
		Int("mirrors", len(state.Mirrors)).
		Int("repos", len(state.Repos)).
		Int("snapshots", len(state.Snapshots)).
		Int("publishes", len(state.Publishes)).
		Msg("backend state read")
	return nil
}

// Reload discards the cached view and reads it again. Only barrier commands
// call it during a batch.
func (r *StateReader) Reload(ctx context.Context) error {
	log.Ctx(ctx).Debug().Msg("reloading backend state")
	r.loaded = false
	return r.Read(ctx)
}

func (r *StateReader) Loaded() bool {
	return r.loaded
}

// State exposes the cached view. Callers must treat it as read-only.
func (r *StateReader) State() types.BackendState {
	return r.state
}

// List runs "<kind> list -raw" and returns the non-blank names.
func (r *StateReader) List(ctx context.Context, kind types.ResourceKind) (map[string]struct{}, error) {
	switch kind {
	case types.ResourceMirror, types.ResourceRepo, types.ResourceSnapshot, types.ResourcePublish:
	default:
		return nil, unknownKindError(kind)
	}
	output, err := r.Runner.Run(ctx, []string{r.AptlyBin, string(kind), "list", "-raw"})
	if err != nil {
		return nil, listError(kind, err)
	}
	names := map[string]struct{}{}
	for _, line := range strings.Split(string(output), "\n") {
		if clean := strings.TrimSpace(line); clean != "" {
			names[clean] = struct{}{}
		}
	}
	return names, nil
}

// GPGKeys lists trusted keys. Both the full id and its 8 character short
// form are recorded for every public key and subkey.
func (r *StateReader) GPGKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := map[string]struct{}{}
	if r.Keyring == nil {
		return keys, nil
	}
	listing, err := r.Keyring.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 5 {
			continue
		}
		if fields[0] != "pub" && fields[0] != "sub" {
			continue
		}
		key := strings.TrimSpace(fields[4])
		if key == "" {
			continue
		}
		keys[key] = struct{}{}
		if len(key) > 8 {
			keys[key[len(key)-8:]] = struct{}{}
		}
	}
	return keys, nil
}

func (r *StateReader) readSnapshotMap(ctx context.Context, snapshots map[string]struct{}, created map[string]time.Time) (map[string]map[string]struct{}, error) {
	out := map[string]map[string]struct{}{}
	for _, name := range sortedNames(snapshots) {
		output, err := r.Runner.Run(ctx, []string{r.AptlyBin, "snapshot", "show", name})
		if err != nil {
			return nil, showError("snapshot", name, err)
		}
		text := string(output)
		out[name] = matchSources(extractSources(text), snapshotSourcePattern)
		if createdAt := extractCreatedAt(text); !createdAt.IsZero() {
			created[name] = createdAt
		}
	}
	log.Ctx(ctx).Debug().Interface("snapshot_map", out).Msg("joined snapshots with their sources")
	return out, nil
}

func (r *StateReader) readPublishMap(ctx context.Context, publishes map[string]struct{}) (map[string]map[string]struct{}, error) {
	out := map[string]map[string]struct{}{}
	for _, key := range sortedNames(publishes) {
		fields := strings.Fields(key)
		if len(fields) != 2 {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("unexpected publish listing entry: %q", key))
		}
		endpoint, distribution := fields[0], fields[1]
		output, err := r.Runner.Run(ctx, []string{r.AptlyBin, "publish", "show", distribution, endpoint})
		if err != nil {
			return nil, showError("publish", key, err)
		}
		out[key] = matchSources(extractSources(string(output)), publishSourcePattern)
	}
	log.Ctx(ctx).Debug().Interface("publish_map", out).Msg("joined publishes with their snapshots")
	return out, nil
}

// HasDependency is the external-satisfaction predicate for the scheduler.
// Virtual resources are never satisfied externally; "any" matches a name of
// any real kind except keys.
func (r *StateReader) HasDependency(res types.Resource) (bool, error) {
	switch res.Kind {
	case types.ResourceMirror:
		return has(r.state.Mirrors, res.Name), nil
	case types.ResourceRepo:
		return has(r.state.Repos, res.Name), nil
	case types.ResourceSnapshot:
		return has(r.state.Snapshots, res.Name), nil
	case types.ResourcePublish:
		return has(r.state.Publishes, res.Name), nil
	case types.ResourceGPGKey:
		return has(r.state.GPGKeys, res.Name), nil
	case types.ResourceVirtual:
		return false, nil
	case types.ResourceAny:
		return has(r.state.Mirrors, res.Name) || has(r.state.Repos, res.Name) ||
			has(r.state.Snapshots, res.Name) || has(r.state.Publishes, res.Name), nil
	default:
		return false, unknownKindError(res.Kind)
	}
}

func (r *StateReader) HasMirror(name string) bool   { return has(r.state.Mirrors, name) }
func (r *StateReader) HasRepo(name string) bool     { return has(r.state.Repos, name) }
func (r *StateReader) HasSnapshot(name string) bool { return has(r.state.Snapshots, name) }
func (r *StateReader) HasPublish(key string) bool   { return has(r.state.Publishes, key) }
func (r *StateReader) HasGPGKey(key string) bool    { return has(r.state.GPGKeys, key) }

// PublishSnapshots returns what the endpoint currently serves; ok is false
// when the endpoint is unknown.
func (r *StateReader) PublishSnapshots(key string) ([]string, bool) {
	served, ok := r.state.PublishSnapshots[key]
	if !ok {
		return nil, false
	}
	return sortedNames(served), true
}

func (r *StateReader) SnapshotSources(name string) []string {
	return sortedNames(r.state.SnapshotSources[name])
}

func (r *StateReader) SnapshotCreatedAt(name string) time.Time {
	return r.state.SnapshotCreated[name]
}

// Dependents lists the snapshots that name one of their sources as name.
func (r *StateReader) Dependents(name string) []string {
	var out []string
	for snapshot, sources := range r.state.SnapshotSources {
		if _, ok := sources[name]; ok {
			out = append(out, snapshot)
		}
	}
	sort.Strings(out)
	return out
}

// DependentsOfSnapshot walks dependents transitively. Each dependent is
// visited once; cycles and self references terminate.
func (r *StateReader) DependentsOfSnapshot(name string) []string {
	visited := map[string]struct{}{name: {}}
	var out []string
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range r.Dependents(current) {
			if _, seen := visited[dependent]; seen {
				continue
			}
			visited[dependent] = struct{}{}
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}
	return out
}

// extractSources returns the indented lines following a "Sources:" header.
func extractSources(text string) []string {
	var sources []string
	entered := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if entered {
			if !strings.HasPrefix(line, "  ") {
				break
			}
			sources = append(sources, line)
			continue
		}
		if strings.TrimSpace(line) == "Sources:" {
			entered = true
		}
	}
	return sources
}

func matchSources(lines []string, pattern *regexp.Regexp) map[string]struct{} {
	names := map[string]struct{}{}
	for _, line := range lines {
		if match := pattern.FindStringSubmatch(line); match != nil {
			names[match[1]] = struct{}{}
		}
	}
	return names
}

func extractCreatedAt(text string) time.Time {
	for _, line := range strings.Split(text, "\n") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), "Created At:"); ok {
			return parseTimeFlexible(value)
		}
	}
	return time.Time{}
}

func has(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func listError(kind types.ResourceKind, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("failed to list %s", kind)).
		WithCause(err)
}

func showError(kind string, name string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("failed to show %s %s", kind, name)).
		WithCause(err)
}
