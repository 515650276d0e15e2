package adapters

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"aptly-reconcile/internal/ports"
)

// AptlyVersionProbe asks the aptly binary for its version.
type AptlyVersionProbe struct {
	Runner   ports.CommandRunnerPort
	AptlyBin string
}

func NewAptlyVersionProbe(runner ports.CommandRunnerPort, aptlyBin string) AptlyVersionProbe {
	if aptlyBin == "" {
		aptlyBin = "aptly"
	}
	return AptlyVersionProbe{Runner: runner, AptlyBin: aptlyBin}
}

func (p AptlyVersionProbe) BackendVersion(ctx context.Context) (string, error) {
	output, err := p.Runner.Run(ctx, []string{p.AptlyBin, "version"})
	if err != nil {
		return "", err
	}
	return parseAptlyVersion(string(output))
}

// parseAptlyVersion reads "aptly version: 1.5.0" style output.
func parseAptlyVersion(output string) (string, error) {
	for _, line := range strings.Split(output, "\n") {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), "aptly version:"); ok {
			if version := strings.TrimSpace(value); version != "" {
				return version, nil
			}
		}
	}
	return "", errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("could not read aptly version from output")
}

var _ ports.BackendVersionPort = AptlyVersionProbe{}
