package cli

import (
	"github.com/spf13/cobra"

	"aptly-reconcile/internal/app"
)

func newStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show what aptly currently holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := newAppService().InspectState(cmd.Context())
			if err != nil {
				return err
			}
			return app.WriteState(cmd.OutOrStdout(), result.State)
		},
	}
}
