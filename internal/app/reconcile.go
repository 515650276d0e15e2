package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"aptly-reconcile/internal/adapters"
	"aptly-reconcile/internal/core"
	"aptly-reconcile/internal/shared"
	"aptly-reconcile/internal/types"
)

type session struct {
	config  types.Config
	state   *core.StateReader
	planner *core.Planner
}

func (s Service) openSession(ctx context.Context, configPath string) (session, error) {
	if strings.TrimSpace(configPath) == "" {
		return session{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("config path is required")
	}
	if err := s.Preflight(ctx); err != nil {
		return session{}, err
	}
	cfg, err := s.ConfigLoader.Load(configPath)
	if err != nil {
		return session{}, err
	}
	state, err := s.readState(ctx)
	if err != nil {
		return session{}, err
	}
	planner := core.NewPlanner(cfg, state, s.Keyring, s.Clock)
	planner.Keyserver = s.Keyserver
	if planner.Keyserver == "" {
		planner.Keyserver = adapters.DefaultKeyserver
	}
	return session{config: cfg, state: state, planner: planner}, nil
}

func (s Service) readState(ctx context.Context) (*core.StateReader, error) {
	state := core.NewStateReader(s.Runner, s.Keyring, s.AptlyBin)
	if err := state.Read(ctx); err != nil {
		return nil, err
	}
	return state, nil
}

// Mirror creates or updates the selected mirrors.
func (s Service) Mirror(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	sess, err := s.openSession(ctx, req.ConfigPath)
	if err != nil {
		return ReconcileResult{}, err
	}
	names, err := selectNames(types.ResourceMirror, shared.SortedKeys(sess.config.Mirrors), req.Name)
	if err != nil {
		return ReconcileResult{}, err
	}
	var commands []*core.Command
	for _, name := range names {
		var planned []*core.Command
		switch req.Task {
		case TaskCreate:
			planned, err = sess.planner.MirrorCreate(ctx, name)
		case TaskUpdate:
			planned, err = sess.planner.MirrorUpdate(ctx, name)
		default:
			return ReconcileResult{}, unsupportedTask(types.ResourceMirror, req.Task)
		}
		if err != nil {
			return ReconcileResult{}, err
		}
		commands = append(commands, planned...)
	}
	return s.execute(ctx, sess, commands, req)
}

// Repo creates the selected local repositories. Repos have no update task.
func (s Service) Repo(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	if req.Task != TaskCreate {
		return ReconcileResult{}, unsupportedTask(types.ResourceRepo, req.Task)
	}
	sess, err := s.openSession(ctx, req.ConfigPath)
	if err != nil {
		return ReconcileResult{}, err
	}
	names, err := selectNames(types.ResourceRepo, shared.SortedKeys(sess.config.Repos), req.Name)
	if err != nil {
		return ReconcileResult{}, err
	}
	var commands []*core.Command
	for _, name := range names {
		planned, err := sess.planner.RepoCreate(ctx, name)
		if err != nil {
			return ReconcileResult{}, err
		}
		commands = append(commands, planned...)
	}
	return s.execute(ctx, sess, commands, req)
}

// Snapshot creates the selected snapshots, or updates them. Updating
// rotates rolling snapshots together so a shared dependent is rebuilt once.
func (s Service) Snapshot(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	sess, err := s.openSession(ctx, req.ConfigPath)
	if err != nil {
		return ReconcileResult{}, err
	}
	names, err := selectNames(types.ResourceSnapshot, shared.SortedKeys(sess.config.Snapshots), req.Name)
	if err != nil {
		return ReconcileResult{}, err
	}
	var commands []*core.Command
	switch req.Task {
	case TaskCreate:
		for _, name := range names {
			planned, err := sess.planner.SnapshotCreate(ctx, name, false)
			if err != nil {
				return ReconcileResult{}, err
			}
			commands = append(commands, planned...)
		}
	case TaskUpdate:
		commands, err = sess.planner.SnapshotUpdate(ctx, names)
		if err != nil {
			return ReconcileResult{}, err
		}
	default:
		return ReconcileResult{}, unsupportedTask(types.ResourceSnapshot, req.Task)
	}
	return s.execute(ctx, sess, commands, req)
}

// Publish creates or updates the selected publish endpoints. Selecting all
// of them only considers entries marked for automatic update.
func (s Service) Publish(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	sess, err := s.openSession(ctx, req.ConfigPath)
	if err != nil {
		return ReconcileResult{}, err
	}
	all := isAll(req.Name)
	names, err := selectNames(types.ResourcePublish, shared.SortedKeys(sess.config.Publishes), req.Name)
	if err != nil {
		return ReconcileResult{}, err
	}
	var commands []*core.Command
	for _, name := range names {
		for _, entry := range sess.config.Publishes[name] {
			if all && !entry.AutomaticUpdate {
				continue
			}
			var planned []*core.Command
			switch req.Task {
			case TaskCreate:
				planned, err = sess.planner.PublishCreate(ctx, name, entry)
			case TaskUpdate:
				planned, err = sess.planner.PublishUpdate(ctx, name, entry)
			default:
				return ReconcileResult{}, unsupportedTask(types.ResourcePublish, req.Task)
			}
			if err != nil {
				return ReconcileResult{}, err
			}
			commands = append(commands, planned...)
		}
	}
	return s.execute(ctx, sess, commands, req)
}

func (s Service) execute(ctx context.Context, sess session, commands []*core.Command, req ReconcileRequest) (ReconcileResult, error) {
	logger := log.Ctx(ctx)
	ordered, err := core.OrderCommands(ctx, commands, sess.state.HasDependency)
	if err != nil {
		return ReconcileResult{}, err
	}
	summary := core.Summary(ordered)
	logger.Info().Int("commands", len(ordered)).Str("summary", summary).Msg("plan ordered")
	if req.GraphPath != "" {
		if err := writeGraph(req.GraphPath, ordered); err != nil {
			return ReconcileResult{}, err
		}
		logger.Info().Str("path", req.GraphPath).Msg("wrote command dependency graph")
	}
	displays := make([]string, 0, len(ordered))
	for _, cmd := range ordered {
		displays = append(displays, cmd.Display())
	}
	executed, err := core.NewExecutor(s.Runner, req.Pretend).Run(ctx, ordered)
	result := ReconcileResult{
		Commands: displays,
		Plan:     core.RenderPlan(ordered),
		Executed: executed,
		Pretend:  req.Pretend,
		Summary:  summary,
	}
	return result, err
}

func writeGraph(path string, commands []*core.Command) error {
	if err := os.WriteFile(path, []byte(core.RenderDot(commands)), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write graph %s", path)).
			WithCause(err)
	}
	return nil
}

func isAll(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed == "" || trimmed == AllNames
}

// selectNames resolves a requested name against the declared ones before
// anything is planned.
func selectNames(kind types.ResourceKind, declared []string, requested string) ([]string, error) {
	if isAll(requested) {
		return declared, nil
	}
	name := strings.TrimSpace(requested)
	for _, candidate := range declared {
		if candidate == name {
			return []string{name}, nil
		}
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("requested %s is not defined in config file: %s", kind, name))
}

func unsupportedTask(kind types.ResourceKind, task Task) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("unsupported %s task: %q", kind, task))
}
