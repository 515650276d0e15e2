package adapters

import (
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerReturnsStdout(t *testing.T) {
	output, err := NewExecRunner().Run(t.Context(), []string{"sh", "-c", "echo out; echo noise >&2"})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(output))
}

func TestExecRunnerFailureCarriesStderr(t *testing.T) {
	_, err := NewExecRunner().Run(t.Context(), []string{"sh", "-c", "echo 'ERROR: unable to find mirror' >&2; exit 3"})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
}

func TestExecRunnerRejectsEmptyCommand(t *testing.T) {
	_, err := NewExecRunner().Run(t.Context(), nil)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
