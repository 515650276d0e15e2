package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/ports"
	"aptly-reconcile/internal/shared"
)

// ExecRunner runs backend and keyring processes on the local host.
type ExecRunner struct {
	Dir string
	Env []string
}

func NewExecRunner() ExecRunner {
	return ExecRunner{}
}

// Run returns stdout. A non-zero exit is an Internal error carrying stderr.
func (r ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("command line is empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	log.Ctx(ctx).Debug().Strs("argv", argv).Msg("exec")
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("%s failed", argv[0])).
			WithCause(shared.CommandError(stderr.Bytes(), err))
	}
	return stdout.Bytes(), nil
}

var _ ports.CommandRunnerPort = ExecRunner{}
