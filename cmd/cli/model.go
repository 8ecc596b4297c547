package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/covenantwatch/internal/domain/models"
	"github.com/turtacn/covenantwatch/internal/infrastructure/modelstore"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and validate risk model parameters",
	}

	show := &cobra.Command{
		Use:   "show [file]",
		Short: "Print a parameter file, or the built-in parameters, as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := models.DefaultModelParameters()
			if len(args) == 1 {
				var err error
				if params, err = modelstore.Load(args[0]); err != nil {
					return err
				}
			}
			out, err := modelstore.Encode(params)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a parameter file matches the feature layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := modelstore.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (version %s, %d features)\n", args[0], params.Version, len(params.FeatureOrder))
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}
