//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"

	"aptly-reconcile/internal/adapters"
	"aptly-reconcile/internal/app"
	"aptly-reconcile/tests/testutil"
)

const reconcileConfig = `
[repo.local]
components = "main"
distribution = "stable"
comment = "integration"

[snapshot.local-current]
repo = "local"

[[publish.local]]
distribution = "stable"
components = "main"
architectures = ["amd64"]
skip-signing = true
automatic-update = true
snapshots = [{name = "local-current"}]
`

// containerRunner executes aptly inside the test container.
type containerRunner struct {
	container testcontainers.Container
}

func (r containerRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	code, reader, err := r.container.Exec(ctx, argv, tcexec.Multiplexed())
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return out, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("%s exited with %d: %s", strings.Join(argv, " "), code, strings.TrimSpace(string(out))))
	}
	return out, nil
}

func startAptly(ctx context.Context, t *testing.T) (containerRunner, func()) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image: "debian:bookworm-slim",
		Cmd:   []string{"sleep", "infinity"},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	cleanup := func() {
		_ = container.Terminate(context.Background())
	}

	runner := containerRunner{container: container}
	install := []string{"sh", "-c", "apt-get update -qq && DEBIAN_FRONTEND=noninteractive apt-get install -y -qq aptly gnupg >/dev/null"}
	if _, err := runner.Run(ctx, install); err != nil {
		cleanup()
		require.NoError(t, err)
	}
	return runner, cleanup
}

func newContainerService(runner containerRunner, now time.Time) app.Service {
	return app.Service{
		ConfigLoader:    adapters.NewConfigFileAdapter(),
		Converter:       adapters.NewConfigConverter(),
		Runner:          runner,
		Keyring:         adapters.NewGPGKeyring(runner, "gpg", "trustedkeys.gpg"),
		Version:         adapters.NewAptlyVersionProbe(runner, "aptly"),
		AptlyBin:        "aptly",
		MinAptlyVersion: "1.3.0",
		Clock:           func() time.Time { return now },
	}
}

func TestReconcileAgainstRealAptly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers run in short mode")
	}

	ctx := t.Context()
	runner, cleanup := startAptly(ctx, t)
	t.Cleanup(cleanup)

	configPath := testutil.WriteFile(t, t.TempDir(), "aptly.toml", reconcileConfig)
	now := time.Date(2012, 10, 10, 10, 10, 0, 0, time.UTC)
	service := newContainerService(runner, now)
	request := func(task app.Task) app.ReconcileRequest {
		return app.ReconcileRequest{ConfigPath: configPath, Task: task, Name: app.AllNames}
	}

	_, err := service.Repo(ctx, request(app.TaskCreate))
	require.NoError(t, err)
	_, err = service.Snapshot(ctx, request(app.TaskCreate))
	require.NoError(t, err)
	_, err = service.Publish(ctx, request(app.TaskCreate))
	require.NoError(t, err)

	state, err := service.InspectState(ctx)
	require.NoError(t, err)
	assert.Contains(t, state.State.Repos, "local")
	assert.Contains(t, state.State.Snapshots, "local-current")
	assert.Contains(t, state.State.PublishSnapshots["local stable"], "local-current")

	again, err := service.Publish(ctx, request(app.TaskCreate))
	require.NoError(t, err)
	assert.Empty(t, again.Commands)

	rotated, err := service.Snapshot(ctx, request(app.TaskUpdate))
	require.NoError(t, err)
	assert.Equal(t, len(rotated.Commands), rotated.Executed)

	state, err = service.InspectState(ctx)
	require.NoError(t, err)
	assert.Contains(t, state.State.Snapshots, "local-current")
	assert.Contains(t, state.State.Snapshots, "local-current-rotated-20121010T1010Z")
	assert.Contains(t, state.State.PublishSnapshots["local stable"], "local-current")

	pruned, err := service.PruneSnapshots(ctx, app.PruneRequest{KeepLast: 0, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned.DeleteCount)
}

func TestConvertFixturesOffline(t *testing.T) {
	root := testutil.RepoRoot(t)
	out := filepath.Join(t.TempDir(), "publish.toml")
	result, err := app.NewService(app.Settings{}).Convert(t.Context(), app.ConvertRequest{
		InputPath:  filepath.Join(root, "fixtures", "publish-publish.yaml"),
		OutputPath: out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, result.OutputPath)
}
