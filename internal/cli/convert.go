package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aptly-reconcile/internal/app"
)

type convertOptions struct {
	AddDefaults bool
}

func newConvertCommand() *cobra.Command {
	opts := convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert <input> <output.toml>",
		Short: "Convert a yaml, toml or json config to toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newAppService().Convert(cmd.Context(), app.ConvertRequest{
				InputPath:   args[0],
				OutputPath:  args[1],
				AddDefaults: opts.AddDefaults,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", result.OutputPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.AddDefaults, "add-defaults", false, "Fill in components and distribution defaults")
	return cmd
}
