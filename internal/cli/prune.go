package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aptly-reconcile/internal/app"
)

type pruneOptions struct {
	KeepLast int
	KeepDays int
	DryRun   bool
}

func newPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop rotated snapshots based on retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.KeepLast, "keep-last", 3, "Keep the last N rotated snapshots per lineage")
	cmd.Flags().IntVar(&opts.KeepDays, "keep-days", 0, "Keep rotated snapshots newer than N days")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", true, "Only report prune actions without dropping")

	_ = viper.BindPFlag("keep_last", cmd.Flags().Lookup("keep-last"))
	_ = viper.BindPFlag("keep_days", cmd.Flags().Lookup("keep-days"))
	_ = viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, opts pruneOptions) error {
	service := newAppService()
	result, err := service.PruneSnapshots(ctx, app.PruneRequest{
		KeepLast: resolveInt(cmd, opts.KeepLast, "keep_last", "keep-last"),
		KeepDays: resolveInt(cmd, opts.KeepDays, "keep_days", "keep-days"),
		DryRun:   resolveBool(cmd, opts.DryRun, "dry_run", "dry-run"),
		Pretend:  viper.GetBool("pretend"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if result.DryRun {
		fmt.Fprintf(out, "dry-run: keep=%d delete=%d\n", result.KeepCount, result.DeleteCount)
		return nil
	}
	for _, name := range result.Deleted {
		fmt.Fprintf(out, "dropped %s\n", name)
	}
	fmt.Fprintf(out, "pruned snapshots: %d\n", result.DeleteCount)
	return nil
}
