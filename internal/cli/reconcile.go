package cli

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aptly-reconcile/internal/app"
)

type reconcileFunc func(app.Service, context.Context, app.ReconcileRequest) (app.ReconcileResult, error)

func newMirrorCommand() *cobra.Command {
	return newEntityCommand("mirror", "Create or update aptly mirrors", []app.Task{app.TaskCreate, app.TaskUpdate}, app.Service.Mirror)
}

func newRepoCommand() *cobra.Command {
	return newEntityCommand("repo", "Create aptly local repositories", []app.Task{app.TaskCreate}, app.Service.Repo)
}

func newSnapshotCommand() *cobra.Command {
	return newEntityCommand("snapshot", "Create or update aptly snapshots", []app.Task{app.TaskCreate, app.TaskUpdate}, app.Service.Snapshot)
}

func newPublishCommand() *cobra.Command {
	return newEntityCommand("publish", "Create or update aptly publish endpoints", []app.Task{app.TaskCreate, app.TaskUpdate}, app.Service.Publish)
}

func newEntityCommand(kind string, short string, tasks []app.Task, run reconcileFunc) *cobra.Command {
	valid := make([]string, 0, len(tasks))
	for _, task := range tasks {
		valid = append(valid, string(task))
	}
	return &cobra.Command{
		Use:       fmt.Sprintf("%s <task> [name]", kind),
		Short:     short,
		Long:      fmt.Sprintf("%s\n\nTasks: %v. The name defaults to %q.", short, valid, app.AllNames),
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: valid,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildReconcileRequest(args, tasks)
			if err != nil {
				return err
			}
			result, err := run(newAppService(), cmd.Context(), req)
			if err != nil {
				return err
			}
			printReconcileResult(cmd, result)
			return nil
		},
	}
}

func buildReconcileRequest(args []string, tasks []app.Task) (app.ReconcileRequest, error) {
	task := app.Task(args[0])
	supported := false
	for _, candidate := range tasks {
		if candidate == task {
			supported = true
		}
	}
	if !supported {
		return app.ReconcileRequest{}, invalidArgs(fmt.Sprintf("unsupported task %q, expected one of %v", task, tasks))
	}
	name := app.AllNames
	if len(args) == 2 {
		name = args[1]
	}
	return app.ReconcileRequest{
		ConfigPath: viper.GetString("config"),
		Task:       task,
		Name:       name,
		Pretend:    viper.GetBool("pretend"),
		GraphPath:  viper.GetString("graph"),
	}, nil
}

func printReconcileResult(cmd *cobra.Command, result app.ReconcileResult) {
	out := cmd.OutOrStdout()
	if len(result.Commands) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return
	}
	if result.Pretend {
		fmt.Fprintln(out, "pretend: would run")
	}
	fmt.Fprint(out, result.Plan)
	if !result.Pretend {
		fmt.Fprintf(out, "executed %d of %d commands (%s)\n", result.Executed, len(result.Commands), result.Summary)
	}
}

func invalidArgs(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
}
