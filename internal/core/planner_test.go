package core

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptly-reconcile/internal/types"
	"aptly-reconcile/tests/testutil"
)

var plannerNow = time.Date(2012, 10, 10, 10, 10, 0, 0, time.UTC)

func newTestPlanner(t *testing.T, cfg types.Config, backend *testutil.FakeBackend) *Planner {
	t.Helper()
	reader := readState(t, backend)
	planner := NewPlanner(cfg, reader, backend, func() time.Time { return plannerNow })
	planner.Keyserver = "hkps://keys.openpgp.org"
	return planner
}

func res(kind types.ResourceKind, name string) types.Resource {
	return types.NewResource(kind, name)
}

func requireSingle(t *testing.T, cmds []*Command) *Command {
	t.Helper()
	require.Len(t, cmds, 1)
	return cmds[0]
}

func TestSnapshotFromExistingMirror(t *testing.T) {
	cfg := types.Config{
		Mirrors: map[string]types.Mirror{"repoA": {Archive: "http://deb.example.org", Distribution: "main", Components: []string{"main"}}},
		Snapshots: map[string]types.Snapshot{
			"repoA-latest": {Source: types.MirrorSource{Mirror: "repoA"}},
		},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddMirror("repoA"))

	cmd := requireSingle(t, mustPlan(planner.SnapshotCreate(t.Context(), "repoA-latest", false)))
	assert.Equal(t, []string{"aptly", "snapshot", "create", "repoA-latest", "from", "mirror", "repoA"}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceMirror, "repoA")}, cmd.Requires())
	assert.Equal(t, []types.Resource{res(types.ResourceSnapshot, "repoA-latest")}, cmd.Provides())
}

func TestSnapshotMergeOfExistingSources(t *testing.T) {
	cfg := types.Config{
		Snapshots: map[string]types.Snapshot{
			"super": {Source: types.MergeSource{Sources: []types.SnapshotRef{types.LiteralRef("a"), types.LiteralRef("b")}}},
		},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddSnapshot("a").AddSnapshot("b"))

	cmd := requireSingle(t, mustPlan(planner.SnapshotCreate(t.Context(), "super", false)))
	assert.Equal(t, []string{"aptly", "snapshot", "merge", "super", "a", "b"}, cmd.Argv())
	if diff := cmp.Diff([]types.Resource{res(types.ResourceSnapshot, "a"), res(types.ResourceSnapshot, "b")}, cmd.Requires()); diff != "" {
		t.Fatalf("unexpected requires (-want +got):\n%s", diff)
	}
	assert.Equal(t, []types.Resource{res(types.ResourceSnapshot, "super")}, cmd.Provides())
}

func TestSnapshotFilterResolvesTimestampedSource(t *testing.T) {
	cfg := types.Config{
		Snapshots: map[string]types.Snapshot{
			"fakerepo01-%T": {Source: types.MirrorSource{Mirror: "fakerepo01"}, Timestamp: &types.TimestampSpec{Time: "00:00"}},
			"filtered":      {Source: types.FilterSource{Source: types.TimestampedRef("fakerepo01-%T", 1), Query: "libhello (>= 1.0)"}},
		},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend())

	cmd := requireSingle(t, mustPlan(planner.SnapshotCreate(t.Context(), "filtered", false)))
	assert.Equal(t, []string{"aptly", "snapshot", "filter", "fakerepo01-20121009T0000Z", "filtered", "libhello (>= 1.0)"}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceSnapshot, "fakerepo01-20121009T0000Z")}, cmd.Requires())
}

func TestSnapshotCreateSkipsExistingUnlessForced(t *testing.T) {
	cfg := types.Config{
		Snapshots: map[string]types.Snapshot{
			"fakerepo01-%T": {Source: types.MirrorSource{Mirror: "fakerepo01"}, Timestamp: &types.TimestampSpec{Time: "00:00"}},
		},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddSnapshot("fakerepo01-20121010T0000Z"))

	assert.Empty(t, mustPlan(planner.SnapshotCreate(t.Context(), "fakerepo01-%T", false)))
	forced := requireSingle(t, mustPlan(planner.SnapshotCreate(t.Context(), "fakerepo01-%T", true)))
	assert.Equal(t, []types.Resource{res(types.ResourceSnapshot, "fakerepo01-20121010T0000Z")}, forced.Provides())
}

func TestSnapshotCreateUndeclared(t *testing.T) {
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend())
	_, err := planner.SnapshotCreate(t.Context(), "ghost", false)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestMirrorCreateImportsMissingKeys(t *testing.T) {
	cfg := types.Config{
		Mirrors: map[string]types.Mirror{
			"fakerepo01": {
				Archive:       "http://localhost:3123/fakerepo01",
				Distribution:  "main",
				Components:    []string{"main"},
				GPGKeys:       []string{"650EA84C", "EA3C3C0B"},
				GPGURLs:       []string{"http://localhost:3123/keys/test01.key"},
				UDeb:          true,
				Architectures: []string{"amd64", "i386"},
			},
		},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddKey("7FAC5991650EA84C"))

	cmds := mustPlan(planner.MirrorCreate(t.Context(), "fakerepo01"))
	require.Len(t, cmds, 2)
	assert.True(t, cmds[0].IsFunction())
	assert.Equal(t, "import-gpg-key(EA3C3C0B)", cmds[0].Display())
	assert.Equal(t, []types.Resource{res(types.ResourceGPGKey, "EA3C3C0B")}, cmds[0].Provides())

	create := cmds[1]
	assert.Equal(t, []string{
		"aptly", "mirror", "create", "-with-sources=false", "-with-udebs", "-architectures=amd64,i386",
		"fakerepo01", "http://localhost:3123/fakerepo01", "main", "main",
	}, create.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceGPGKey, "650EA84C"), res(types.ResourceGPGKey, "EA3C3C0B")}, create.Requires())

	ordered, err := OrderCommands(t.Context(), cmds, planner.State.HasDependency)
	require.NoError(t, err)
	assert.Same(t, cmds[0], ordered[0])
}

func TestMirrorCreateExisting(t *testing.T) {
	cfg := types.Config{Mirrors: map[string]types.Mirror{"m": {Archive: "a", Distribution: "d"}}}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddMirror("m"))
	assert.Empty(t, mustPlan(planner.MirrorCreate(t.Context(), "m")))
}

func TestMirrorUpdate(t *testing.T) {
	cfg := types.Config{Mirrors: map[string]types.Mirror{"m": {Archive: "a", Distribution: "d", MaxTries: 3}}}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend().AddMirror("m"))

	cmd := requireSingle(t, mustPlan(planner.MirrorUpdate(t.Context(), "m")))
	assert.Equal(t, []string{"aptly", "mirror", "update", "-max-tries=3", "m"}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceMirror, "m")}, cmd.Requires())

	_, err := planner.MirrorUpdate(t.Context(), "missing")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestRepoCreate(t *testing.T) {
	cfg := types.Config{Repos: map[string]types.Repo{
		"local": {Components: []string{"main"}, Distribution: "stable", Comment: "built here"},
	}}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend())

	cmd := requireSingle(t, mustPlan(planner.RepoCreate(t.Context(), "local")))
	assert.Equal(t, []string{"aptly", "repo", "create", "-comment=built here", "-component=main", "-distribution=stable", "local"}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceRepo, "local")}, cmd.Provides())

	planner = newTestPlanner(t, cfg, testutil.NewFakeBackend().AddRepo("local"))
	assert.Empty(t, mustPlan(planner.RepoCreate(t.Context(), "local")))
}

func TestPublishCreateFromSnapshots(t *testing.T) {
	cfg := types.Config{
		Snapshots: map[string]types.Snapshot{
			"fakerepo01-%T": {Source: types.MirrorSource{Mirror: "fakerepo01"}, Timestamp: &types.TimestampSpec{Time: "00:00"}},
		},
	}
	entry := types.Publish{
		Distribution: "main",
		Components:   []string{"main"},
		GPGKey:       "7FAC5991",
		Source:       types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.TimestampedRef("fakerepo01-%T", 0)}},
	}
	planner := newTestPlanner(t, cfg, testutil.NewFakeBackend())

	cmd := requireSingle(t, mustPlan(planner.PublishCreate(t.Context(), "fakerepo01", entry)))
	assert.Equal(t, []string{
		"aptly", "publish", "snapshot", "-component=main", "-distribution=main", "-gpg-key=7FAC5991",
		"fakerepo01-20121010T0000Z", "fakerepo01",
	}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceSnapshot, "fakerepo01-20121010T0000Z")}, cmd.Requires())
	assert.Equal(t, []types.Resource{res(types.ResourcePublish, "fakerepo01 main")}, cmd.Provides())
}

func TestPublishCreateComponentMismatch(t *testing.T) {
	entry := types.Publish{
		Distribution: "main",
		Components:   []string{"main"},
		Source:       types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.LiteralRef("a"), types.LiteralRef("b")}},
	}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend())
	_, err := planner.PublishCreate(t.Context(), "pub", entry)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestPublishCreateFromRepo(t *testing.T) {
	entry := types.Publish{Distribution: "stable", Components: []string{"main"}, SkipSigning: true, Source: types.RepoPublishSource{Repo: "local"}}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend())

	cmd := requireSingle(t, mustPlan(planner.PublishCreate(t.Context(), "localpub", entry)))
	assert.Equal(t, []string{"aptly", "publish", "repo", "-component=main", "-distribution=stable", "-skip-signing=true", "local", "localpub"}, cmd.Argv())
	assert.Equal(t, []types.Resource{res(types.ResourceRepo, "local")}, cmd.Requires())
}

func TestPublishCreateChainedDefersUntilSourceExists(t *testing.T) {
	entry := types.Publish{
		Distribution: "stable",
		Components:   []string{"main"},
		Source:       types.ChainedPublishSource{Endpoint: "A", Distribution: "main"},
	}

	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend())
	cmds, err := planner.PublishCreate(t.Context(), "B", entry)
	require.NoError(t, err)
	assert.Empty(t, cmds)

	planner = newTestPlanner(t, types.Config{}, testutil.NewFakeBackend().AddSnapshot("s1").AddPublish("A", "main", "s1"))
	cmd := requireSingle(t, mustPlan(planner.PublishCreate(t.Context(), "B", entry)))
	assert.Equal(t, []string{"aptly", "publish", "snapshot", "-component=main", "-distribution=stable", "s1", "B"}, cmd.Argv())
	assert.True(t, cmd.RequiresResource(res(types.ResourcePublish, "A main")))
}

func TestPublishCreateSkipsExisting(t *testing.T) {
	entry := types.Publish{Distribution: "main", Source: types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.LiteralRef("s")}}}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend().AddSnapshot("s").AddPublish("pub", "main", "s"))
	assert.Empty(t, mustPlan(planner.PublishCreate(t.Context(), "pub", entry)))
}

func TestPublishUpdateNoopWhenUnchanged(t *testing.T) {
	entry := types.Publish{Distribution: "main", Components: []string{"main"}, Source: types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.LiteralRef("s")}}}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend().AddSnapshot("s").AddPublish("pub", "main", "s"))
	assert.Empty(t, mustPlan(planner.PublishUpdate(t.Context(), "pub", entry)))
}

func TestPublishUpdateArchivesCurrentSnapshot(t *testing.T) {
	cfg := types.Config{
		Snapshots: map[string]types.Snapshot{
			"fakerepo01-%T": {Source: types.MirrorSource{Mirror: "fakerepo01"}, Timestamp: &types.TimestampSpec{Time: "00:00"}},
		},
	}
	ref := types.TimestampedRef("fakerepo01-%T", 0)
	ref.ArchiveOnUpdate = "archived-fakerepo01-%T"
	entry := types.Publish{
		Distribution: "main",
		Components:   []string{"main"},
		SkipContents: true,
		Source:       types.SnapshotsSource{Snapshots: []types.SnapshotRef{ref}},
	}
	backend := testutil.NewFakeBackend().
		AddSnapshot("fakerepo01-20121009T0000Z").
		AddSnapshot("fakerepo01-20121010T0000Z").
		AddPublish("fakerepo01", "main", "fakerepo01-20121009T0000Z")
	planner := newTestPlanner(t, cfg, backend)

	cmds := mustPlan(planner.PublishUpdate(t.Context(), "fakerepo01", entry))
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"aptly", "snapshot", "merge", "archived-fakerepo01-20121010T1010Z", "fakerepo01-20121009T0000Z"}, cmds[0].Argv())
	assert.Equal(t, []string{"aptly", "publish", "switch", "-component=main", "-skip-contents=true", "main", "fakerepo01", "fakerepo01-20121010T0000Z"}, cmds[1].Argv())
	assert.True(t, cmds[1].RequiresResource(res(types.ResourceSnapshot, "archived-fakerepo01-20121010T1010Z")))

	ordered, err := OrderCommands(t.Context(), []*Command{cmds[1], cmds[0]}, planner.State.HasDependency)
	require.NoError(t, err)
	assert.Equal(t, displays(cmds), displays(ordered))
}

func TestPublishUpdateRepoSource(t *testing.T) {
	entry := types.Publish{Distribution: "stable", Source: types.RepoPublishSource{Repo: "local"}}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend().AddRepo("local").AddPublish("localpub", "stable", "local"))
	cmd := requireSingle(t, mustPlan(planner.PublishUpdate(t.Context(), "localpub", entry)))
	assert.Equal(t, []string{"aptly", "publish", "update", "stable", "localpub"}, cmd.Argv())
}

func TestPublishUpdateFallsBackToCreate(t *testing.T) {
	entry := types.Publish{Distribution: "main", Source: types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.LiteralRef("s")}}}
	planner := newTestPlanner(t, types.Config{}, testutil.NewFakeBackend().AddSnapshot("s"))
	cmd := requireSingle(t, mustPlan(planner.PublishUpdate(t.Context(), "pub", entry)))
	assert.Equal(t, []string{"aptly", "publish", "snapshot", "-distribution=main", "s", "pub"}, cmd.Argv())
}

func TestPublishUpdateChainedFollowsSource(t *testing.T) {
	entry := types.Publish{
		Distribution: "stable",
		Components:   []string{"main"},
		Source:       types.ChainedPublishSource{Endpoint: "A", Distribution: "main"},
	}
	backend := testutil.NewFakeBackend().
		AddSnapshot("old").
		AddSnapshot("new").
		AddPublish("A", "main", "new").
		AddPublish("B", "stable", "old")
	planner := newTestPlanner(t, types.Config{}, backend)

	cmd := requireSingle(t, mustPlan(planner.PublishUpdate(t.Context(), "B", entry)))
	assert.Equal(t, []string{"aptly", "publish", "switch", "-component=main", "stable", "B", "new"}, cmd.Argv())
}

func mustPlan(cmds []*Command, err error) []*Command {
	if err != nil {
		panic(err)
	}
	return cmds
}

func TestPublishUpdateKeepsSigningChoice(t *testing.T) {
	backend := testutil.NewFakeBackend().
		AddRepo("local").
		AddSnapshot("old").
		AddSnapshot("new").
		AddPublish("unsigned", "stable", "old").
		AddPublish("localpub", "stable", "local")
	planner := newTestPlanner(t, types.Config{}, backend)

	unsigned := types.Publish{
		Distribution: "stable",
		SkipSigning:  true,
		Source:       types.SnapshotsSource{Snapshots: []types.SnapshotRef{types.LiteralRef("new")}},
	}
	cmd := requireSingle(t, mustPlan(planner.PublishUpdate(t.Context(), "unsigned", unsigned)))
	assert.Equal(t, []string{"aptly", "publish", "switch", "-skip-signing=true", "stable", "unsigned", "new"}, cmd.Argv())

	signed := types.Publish{Distribution: "stable", GPGKey: "7FAC5991", Source: types.RepoPublishSource{Repo: "local"}}
	cmd = requireSingle(t, mustPlan(planner.PublishUpdate(t.Context(), "localpub", signed)))
	assert.Equal(t, []string{"aptly", "publish", "update", "-gpg-key=7FAC5991", "stable", "localpub"}, cmd.Argv())
}

func TestPublishChainedComponentMismatch(t *testing.T) {
	entry := types.Publish{
		Distribution: "stable",
		Components:   []string{"main"},
		Source:       types.ChainedPublishSource{Endpoint: "A", Distribution: "main"},
	}
	backend := testutil.NewFakeBackend().
		AddSnapshot("s1").
		AddSnapshot("s2").
		AddPublish("A", "main", "s1", "s2")
	planner := newTestPlanner(t, types.Config{}, backend)

	_, err := planner.PublishCreate(t.Context(), "B", entry)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))

	planner = newTestPlanner(t, types.Config{}, backend.AddPublish("B", "stable", "s1"))
	_, err = planner.PublishUpdate(t.Context(), "B", entry)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
