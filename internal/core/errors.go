package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"aptly-reconcile/internal/types"
)

const (
	msgUnknownDependencyKind = "unknown dependency kind"
	msgUnresolvedDependency  = "unresolved dependency"
)

func unknownKindError(kind types.ResourceKind) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s: %q", msgUnknownDependencyKind, kind))
}

func unresolvedError(stuck []*Command) error {
	lines := make([]string, 0, len(stuck))
	for _, cmd := range stuck {
		lines = append(lines, cmd.String())
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s: commands with unresolved deps: [%s]", msgUnresolvedDependency, strings.Join(lines, "; ")))
}

// IsUnknownDependencyKind reports whether err was raised for a resource kind
// outside the recognized vocabulary.
func IsUnknownDependencyKind(err error) bool {
	return hasMessagePrefix(err, msgUnknownDependencyKind)
}

// IsUnresolvedDependency reports whether err was raised by a scheduler that
// could not make progress.
func IsUnresolvedDependency(err error) bool {
	return hasMessagePrefix(err, msgUnresolvedDependency)
}

func hasMessagePrefix(err error, prefix string) bool {
	if err == nil {
		return false
	}
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) {
		if strings.HasPrefix(builder.Msg, prefix) {
			return true
		}
		return hasMessagePrefix(errors.Unwrap(builder), prefix)
	}
	return strings.HasPrefix(err.Error(), prefix)
}

func invalidSource(name string, reason string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid source for %s: %s", name, reason))
}
