package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptly-reconcile/tests/testutil"
)

func TestConvertYAMLToTOMLRoundTrips(t *testing.T) {
	out := filepath.Join(t.TempDir(), "publish-publish.toml")
	require.NoError(t, NewConfigConverter().ConvertToTOML("../../fixtures/publish-publish.yaml", out, false))

	converted, err := NewConfigFileAdapter().Load(out)
	require.NoError(t, err)
	original, err := NewConfigFileAdapter().Load("../../fixtures/publish-publish.yaml")
	require.NoError(t, err)
	if diff := cmp.Diff(original, converted); diff != "" {
		t.Fatalf("conversion changed the config (-yaml +toml):\n%s", diff)
	}
}

func TestConvertAddsDefaults(t *testing.T) {
	dir := t.TempDir()
	in := testutil.WriteFile(t, dir, "in.yaml", `mirror:
  fakerepo01:
    archive: http://localhost:3123/fakerepo01
snapshot:
  fakerepo01-current:
    mirror: fakerepo01
publish:
  fakerepo01:
    - snapshots: fakerepo01-current
`)
	out := filepath.Join(dir, "out.toml")

	require.Error(t, NewConfigConverter().ConvertToTOML(in, out, false))
	require.NoError(t, NewConfigConverter().ConvertToTOML(in, out, true))

	var document map[string]any
	_, err := toml.DecodeFile(out, &document)
	require.NoError(t, err)
	mirror := document["mirror"].(map[string]any)["fakerepo01"].(map[string]any)
	assert.Equal(t, "main", mirror["components"])
	assert.Equal(t, "main", mirror["distribution"])

	cfg, err := NewConfigFileAdapter().Load(out)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Publishes["fakerepo01"][0].Distribution)
	assert.Equal(t, []string{"main"}, cfg.Publishes["fakerepo01"][0].Components)
}

func TestConvertLeavesNoFileOnInvalidInput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.toml")
	require.Error(t, NewConfigConverter().ConvertToTOML("../../fixtures/invalid-two-sources.toml", out, true))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}
