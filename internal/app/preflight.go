package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	debversion "github.com/knqyf263/go-deb-version"
	"github.com/rs/zerolog/log"
)

// Preflight checks the installed aptly against the configured minimum
// version using Debian version ordering. No minimum disables the check.
func (s Service) Preflight(ctx context.Context) error {
	minimum := strings.TrimSpace(s.MinAptlyVersion)
	if minimum == "" || s.Version == nil {
		return nil
	}
	required, err := debversion.NewVersion(minimum)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid minimum aptly version %q", minimum)).
			WithCause(err)
	}
	raw, err := s.Version.BackendVersion(ctx)
	if err != nil {
		return err
	}
	installed, err := debversion.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("unparseable aptly version %q", raw)).
			WithCause(err)
	}
	if installed.LessThan(required) {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("aptly %s is older than the required %s", installed.String(), required.String()))
	}
	log.Ctx(ctx).Debug().Str("aptly_version", installed.String()).Msg("backend version accepted")
	return nil
}
