package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
)

// Convert rewrites a declarative config as TOML, optionally filling in the
// component and distribution defaults.
func (s Service) Convert(ctx context.Context, req ConvertRequest) (ConvertResult, error) {
	in := strings.TrimSpace(req.InputPath)
	out := strings.TrimSpace(req.OutputPath)
	if in == "" || out == "" {
		return ConvertResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("input and output paths are required")
	}
	if err := s.Converter.ConvertToTOML(in, out, req.AddDefaults); err != nil {
		return ConvertResult{}, err
	}
	log.Ctx(ctx).Info().Str("input", in).Str("output", out).Bool("add_defaults", req.AddDefaults).Msg("config converted")
	return ConvertResult{OutputPath: out}, nil
}
