package core

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/types"
)

// Callback is the in-process work of a FunctionCommand.
type Callback func(ctx context.Context) error

// Command is one unit of planned work. It either runs an external process
// (argv) or calls an in-process callback, and declares the resources it
// requires and provides. Edges may only be added before the command is
// frozen for scheduling.
//
// Misuse of Require/Provide/Append is recorded as a sticky error reported by
// Err and by OrderCommands.
type Command struct {
	argv     []string
	fnName   string
	fn       Callback
	requires map[types.Resource]struct{}
	provides map[types.Resource]struct{}
	frozen   bool
	done     bool
	err      error
}

func NewCommand(argv ...string) *Command {
	return &Command{
		argv:     append([]string(nil), argv...),
		requires: map[types.Resource]struct{}{},
		provides: map[types.Resource]struct{}{},
	}
}

// NewFunctionCommand wraps fn. Two function commands are the same
// scheduling node when name, args and edges match.
func NewFunctionCommand(name string, fn Callback, args ...string) *Command {
	cmd := NewCommand(args...)
	cmd.fnName = name
	cmd.fn = fn
	return cmd
}

func (c *Command) IsFunction() bool {
	return c.fn != nil
}

func (c *Command) Err() error {
	return c.err
}

func (c *Command) Done() bool {
	return c.done
}

func (c *Command) Frozen() bool {
	return c.frozen
}

func (c *Command) Freeze() {
	c.frozen = true
}

// Argv returns a copy of the argument vector (callback args for function
// commands).
func (c *Command) Argv() []string {
	return append([]string(nil), c.argv...)
}

func (c *Command) Append(args ...string) {
	if !c.mutable() {
		return
	}
	c.argv = append(c.argv, args...)
}

func (c *Command) Require(kind types.ResourceKind, name string) {
	if !c.mutable() {
		return
	}
	if !kind.IsKnown() && kind != types.ResourceAny {
		c.err = unknownKindError(kind)
		return
	}
	c.requires[types.NewResource(kind, name)] = struct{}{}
}

func (c *Command) Provide(kind types.ResourceKind, name string) {
	if !c.mutable() {
		return
	}
	if !kind.IsKnown() {
		c.err = unknownKindError(kind)
		return
	}
	c.provides[types.NewResource(kind, name)] = struct{}{}
}

// dropRequires removes every requirement matching drop and returns them.
func (c *Command) dropRequires(drop func(types.Resource) bool) []types.Resource {
	if !c.mutable() {
		return nil
	}
	var dropped []types.Resource
	for req := range c.requires {
		if drop(req) {
			dropped = append(dropped, req)
			delete(c.requires, req)
		}
	}
	sortResources(dropped)
	return dropped
}

func (c *Command) mutable() bool {
	if c.err != nil {
		return false
	}
	if c.frozen {
		c.err = errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("command is frozen: %s", c.Display()))
		return false
	}
	return true
}

func (c *Command) Requires() []types.Resource {
	return sortedResources(c.requires)
}

func (c *Command) Provides() []types.Resource {
	return sortedResources(c.provides)
}

func (c *Command) RequiresResource(r types.Resource) bool {
	_, ok := c.requires[r]
	return ok
}

func (c *Command) ProvidesResource(r types.Resource) bool {
	_, ok := c.provides[r]
	return ok
}

// Fingerprint hashes the structural identity: the argument vector in order,
// requires and provides as unordered sets.
func (c *Command) Fingerprint() uint64 {
	digest := xxhash.New()
	_, _ = digest.WriteString(c.fnName)
	_, _ = digest.Write([]byte{0})
	for _, arg := range normalizeArgs(c.argv) {
		_, _ = digest.WriteString(arg)
		_, _ = digest.Write([]byte{0})
	}
	return digest.Sum64() ^ bits.RotateLeft64(setHash(c.requires), 21) ^ bits.RotateLeft64(setHash(c.provides), 42)
}

// Equal reports structural equality over normalized arguments and edges.
func (c *Command) Equal(other *Command) bool {
	if other == nil {
		return false
	}
	if c.IsFunction() != other.IsFunction() || c.fnName != other.fnName {
		return false
	}
	left := normalizeArgs(c.argv)
	right := normalizeArgs(other.argv)
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return sameResources(c.requires, other.requires) && sameResources(c.provides, other.provides)
}

// Display is the human readable command line.
func (c *Command) Display() string {
	if c.IsFunction() {
		return fmt.Sprintf("%s(%s)", c.fnName, strings.Join(c.argv, ", "))
	}
	return strings.Join(c.argv, " ")
}

func (c *Command) String() string {
	return fmt.Sprintf("Command<%s requires %s, provides %s>",
		c.Display(), joinResources(c.Requires()), joinResources(c.Provides()))
}

// Execute runs the command once. A second call is a no-op. In pretend mode
// the intended action is logged and the command is marked done without side
// effects.
func (c *Command) Execute(ctx context.Context, ex Executor) error {
	if c.err != nil {
		return c.err
	}
	if c.done {
		return nil
	}
	logger := log.Ctx(ctx)
	if ex.Pretend {
		logger.Info().Str("command", c.Display()).Msg("pretending to run")
		c.done = true
		return nil
	}
	if c.IsFunction() {
		logger.Debug().Str("function", c.fnName).Strs("args", c.argv).Msg("running function")
		if err := c.fn(ctx); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeOf(err)).
				WithMsg(fmt.Sprintf("function command failed: %s", c.Display())).
				WithCause(err)
		}
		c.done = true
		return nil
	}
	if ex.Runner == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("executor has no command runner")
	}
	logger.Debug().Str("command", c.Display()).Msg("running command")
	if _, err := ex.Runner.Run(ctx, c.Argv()); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("command failed: %s", c.Display())).
			WithCause(err)
	}
	c.done = true
	return nil
}

func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = strings.TrimSpace(arg)
	}
	return out
}

func setHash(set map[types.Resource]struct{}) uint64 {
	var sum uint64
	for r := range set {
		sum += xxhash.Sum64String(string(r.Kind) + "\x00" + r.Name)
	}
	return sum
}

func sameResources(a, b map[types.Resource]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if _, ok := b[r]; !ok {
			return false
		}
	}
	return true
}

func sortedResources(set map[types.Resource]struct{}) []types.Resource {
	out := make([]types.Resource, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sortResources(out)
	return out
}

func sortResources(items []types.Resource) {
	sort.Slice(items, func(i, j int) bool { return items[i].Less(items[j]) })
}

func joinResources(items []types.Resource) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.String())
	}
	return strings.Join(parts, ", ")
}
