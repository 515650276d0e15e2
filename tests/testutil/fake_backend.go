package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// FakeSnapshot is one snapshot held by FakeBackend. Generation grows with
// every snapshot the backend creates, so a rebuilt snapshot is told apart
// from the one it replaced.
type FakeSnapshot struct {
	Sources    []string
	SourceKind string
	Generation int
	CreatedAt  time.Time
}

// FakeBackend interprets aptly and gpg argv in memory. It implements the
// command runner, keyring and version ports.
type FakeBackend struct {
	mu sync.Mutex

	Mirrors       map[string]int
	Repos         map[string]struct{}
	Snapshots     map[string]FakeSnapshot
	Publishes     map[string][]string
	Keys          map[string]struct{}
	Version       string
	Now           time.Time
	Calls         [][]string
	Imports       []string
	FailOn        map[string]error
	FailKeyImport error

	generation int
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Mirrors:   map[string]int{},
		Repos:     map[string]struct{}{},
		Snapshots: map[string]FakeSnapshot{},
		Publishes: map[string][]string{},
		Keys:      map[string]struct{}{},
		Version:   "1.5.0",
		Now:       time.Date(2015, 10, 7, 15, 30, 0, 0, time.UTC),
		FailOn:    map[string]error{},
	}
}

func (f *FakeBackend) AddMirror(name string) *FakeBackend {
	f.Mirrors[name] = 0
	return f
}

func (f *FakeBackend) AddRepo(name string) *FakeBackend {
	f.Repos[name] = struct{}{}
	return f
}

// AddSnapshot registers a snapshot merged from sources (none for a mirror
// snapshot).
func (f *FakeBackend) AddSnapshot(name string, sources ...string) *FakeBackend {
	f.generation++
	kind := "snapshot"
	if len(sources) == 0 {
		kind = "mirror"
	}
	f.Snapshots[name] = FakeSnapshot{Sources: sources, SourceKind: kind, Generation: f.generation, CreatedAt: f.Now}
	return f
}

func (f *FakeBackend) AddPublish(endpoint string, distribution string, snapshots ...string) *FakeBackend {
	f.Publishes[endpoint+" "+distribution] = append([]string(nil), snapshots...)
	return f
}

func (f *FakeBackend) AddKey(id string) *FakeBackend {
	f.Keys[id] = struct{}{}
	return f
}

// Mutations returns every recorded call that is not a read.
func (f *FakeBackend) Mutations() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, call := range f.Calls {
		if len(call) >= 3 && (call[2] == "list" || call[2] == "show") {
			continue
		}
		if len(call) >= 2 && call[1] == "version" {
			continue
		}
		out = append(out, call)
	}
	return out
}

func (f *FakeBackend) BackendVersion(ctx context.Context) (string, error) {
	return f.Version, nil
}

func (f *FakeBackend) ListKeys(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for _, id := range sortedKeys(f.Keys) {
		fmt.Fprintf(&b, "pub:-:4096:1:%s:1444310400:::-:::scESC::::::23::0:\n", id)
	}
	return b.String(), nil
}

func (f *FakeBackend) ImportKey(ctx context.Context, key string, keyserver string, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Imports = append(f.Imports, key)
	if f.FailKeyImport != nil {
		return f.FailKeyImport
	}
	f.Keys[key] = struct{}{}
	return nil
}

// Run executes one aptly argv. argv[0] is the binary and is ignored.
func (f *FakeBackend) Run(ctx context.Context, argv []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, append([]string(nil), argv...))
	if len(argv) < 2 {
		return nil, fmt.Errorf("empty command")
	}
	line := strings.Join(argv[1:], " ")
	for prefix, err := range f.FailOn {
		if strings.HasPrefix(line, prefix) {
			return []byte("scripted failure"), err
		}
	}
	args := argv[1:]
	if args[0] == "version" {
		return []byte("aptly version: " + f.Version + "\n"), nil
	}
	if len(args) < 2 {
		return nil, fmt.Errorf("unsupported command: %s", line)
	}
	switch args[0] + " " + args[1] {
	case "mirror list", "repo list", "snapshot list", "publish list":
		return f.list(args[0]), nil
	case "snapshot show":
		return f.snapshotShow(args[2])
	case "publish show":
		return f.publishShow(args[2], args[3])
	case "mirror create":
		return f.mirrorCreate(positional(args[2:]))
	case "mirror update":
		return f.mirrorUpdate(positional(args[2:]))
	case "repo create":
		pos := positional(args[2:])
		f.Repos[pos[len(pos)-1]] = struct{}{}
		return nil, nil
	case "snapshot create":
		return f.snapshotCreate(args[2:])
	case "snapshot filter":
		return f.snapshotDerive(args[3], args[2:3], "snapshot")
	case "snapshot merge":
		return f.snapshotDerive(args[2], args[3:], "snapshot")
	case "snapshot rename":
		return f.snapshotRename(args[2], args[3])
	case "snapshot drop":
		return f.snapshotDrop(args[2])
	case "publish snapshot", "publish repo":
		return f.publishCreate(args[2:])
	case "publish switch":
		return f.publishSwitch(positional(args[2:]))
	case "publish update":
		pos := positional(args[2:])
		if _, ok := f.Publishes[pos[1]+" "+pos[0]]; !ok {
			return nil, fmt.Errorf("publish %s %s does not exist", pos[1], pos[0])
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported command: %s", line)
}

func (f *FakeBackend) list(kind string) []byte {
	var names []string
	switch kind {
	case "mirror":
		for name := range f.Mirrors {
			names = append(names, name)
		}
	case "repo":
		names = sortedKeys(f.Repos)
	case "snapshot":
		for name := range f.Snapshots {
			names = append(names, name)
		}
	case "publish":
		for key := range f.Publishes {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return []byte(strings.Join(names, "\n") + "\n")
}

func (f *FakeBackend) snapshotShow(name string) ([]byte, error) {
	snapshot, ok := f.Snapshots[name]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", name)
	fmt.Fprintf(&b, "Created At: %s\n", snapshot.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Description: generation %d\n", snapshot.Generation)
	b.WriteString("Number of packages: 0\n")
	if len(snapshot.Sources) > 0 {
		b.WriteString("Sources:\n")
		for _, source := range snapshot.Sources {
			fmt.Fprintf(&b, "  %s [%s]\n", source, snapshot.SourceKind)
		}
	}
	return []byte(b.String()), nil
}

func (f *FakeBackend) publishShow(distribution string, endpoint string) ([]byte, error) {
	snapshots, ok := f.Publishes[endpoint+" "+distribution]
	if !ok {
		return nil, fmt.Errorf("publish %s %s not found", endpoint, distribution)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prefix: %s\nDistribution: %s\nArchitectures: amd64\nSources:\n", endpoint, distribution)
	for i, snapshot := range snapshots {
		fmt.Fprintf(&b, "  component%d: %s [snapshot]\n", i, snapshot)
	}
	return []byte(b.String()), nil
}

func (f *FakeBackend) mirrorCreate(pos []string) ([]byte, error) {
	if len(pos) < 3 {
		return nil, fmt.Errorf("mirror create needs name, archive and distribution")
	}
	if _, ok := f.Mirrors[pos[0]]; ok {
		return nil, fmt.Errorf("mirror %s already exists", pos[0])
	}
	f.Mirrors[pos[0]] = 0
	return nil, nil
}

func (f *FakeBackend) mirrorUpdate(pos []string) ([]byte, error) {
	if _, ok := f.Mirrors[pos[0]]; !ok {
		return nil, fmt.Errorf("mirror %s not found", pos[0])
	}
	f.Mirrors[pos[0]]++
	return nil, nil
}

func (f *FakeBackend) snapshotCreate(args []string) ([]byte, error) {
	if len(args) != 4 || args[1] != "from" {
		return nil, fmt.Errorf("malformed snapshot create: %v", args)
	}
	name, kind, source := args[0], args[2], args[3]
	switch kind {
	case "mirror":
		if _, ok := f.Mirrors[source]; !ok {
			return nil, fmt.Errorf("mirror %s not found", source)
		}
	case "repo":
		if _, ok := f.Repos[source]; !ok {
			return nil, fmt.Errorf("repo %s not found", source)
		}
	}
	if _, ok := f.Snapshots[name]; ok {
		return nil, fmt.Errorf("snapshot %s already exists", name)
	}
	f.generation++
	f.Snapshots[name] = FakeSnapshot{Sources: []string{source}, SourceKind: kind, Generation: f.generation, CreatedAt: f.Now}
	return nil, nil
}

func (f *FakeBackend) snapshotDerive(name string, sources []string, kind string) ([]byte, error) {
	if _, ok := f.Snapshots[name]; ok {
		return nil, fmt.Errorf("snapshot %s already exists", name)
	}
	for _, source := range sources {
		if _, ok := f.Snapshots[source]; !ok {
			return nil, fmt.Errorf("snapshot %s not found", source)
		}
	}
	f.generation++
	f.Snapshots[name] = FakeSnapshot{Sources: append([]string(nil), sources...), SourceKind: kind, Generation: f.generation, CreatedAt: f.Now}
	return nil, nil
}

// snapshotRename follows the backend: publishes and derived snapshots keep
// pointing at the renamed snapshot.
func (f *FakeBackend) snapshotRename(from string, to string) ([]byte, error) {
	snapshot, ok := f.Snapshots[from]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", from)
	}
	if _, exists := f.Snapshots[to]; exists {
		return nil, fmt.Errorf("snapshot %s already exists", to)
	}
	delete(f.Snapshots, from)
	f.Snapshots[to] = snapshot
	for key, served := range f.Publishes {
		f.Publishes[key] = replaceName(served, from, to)
	}
	for name, other := range f.Snapshots {
		if other.SourceKind == "snapshot" {
			other.Sources = replaceName(other.Sources, from, to)
			f.Snapshots[name] = other
		}
	}
	return nil, nil
}

func (f *FakeBackend) snapshotDrop(name string) ([]byte, error) {
	if _, ok := f.Snapshots[name]; !ok {
		return nil, fmt.Errorf("snapshot %s not found", name)
	}
	for key, served := range f.Publishes {
		for _, snapshot := range served {
			if snapshot == name {
				return nil, fmt.Errorf("snapshot %s is published at %s", name, key)
			}
		}
	}
	delete(f.Snapshots, name)
	return nil, nil
}

func (f *FakeBackend) publishCreate(args []string) ([]byte, error) {
	distribution := ""
	for _, arg := range args {
		if value, ok := strings.CutPrefix(arg, "-distribution="); ok {
			distribution = value
		}
	}
	pos := positional(args)
	if len(pos) < 2 {
		return nil, fmt.Errorf("publish needs sources and an endpoint")
	}
	endpoint := pos[len(pos)-1]
	key := endpoint + " " + distribution
	if _, ok := f.Publishes[key]; ok {
		return nil, fmt.Errorf("publish %s already exists", key)
	}
	f.Publishes[key] = append([]string(nil), pos[:len(pos)-1]...)
	return nil, nil
}

func (f *FakeBackend) publishSwitch(pos []string) ([]byte, error) {
	if len(pos) < 3 {
		return nil, fmt.Errorf("publish switch needs distribution, endpoint and snapshots")
	}
	key := pos[1] + " " + pos[0]
	if _, ok := f.Publishes[key]; !ok {
		return nil, fmt.Errorf("publish %s not found", key)
	}
	for _, snapshot := range pos[2:] {
		if _, ok := f.Snapshots[snapshot]; !ok {
			return nil, fmt.Errorf("snapshot %s not found", snapshot)
		}
	}
	f.Publishes[key] = append([]string(nil), pos[2:]...)
	return nil, nil
}

func positional(args []string) []string {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func replaceName(names []string, from string, to string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		if name == from {
			name = to
		}
		out[i] = name
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
