package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/validation"
)

func newValidationCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spatial-validation",
		Short: "Spatial metadata validation commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "report [pkg]",
		Short: "Print the validation report of harvested objects, optionally for one package",
		Args:  cobra.MaximumNArgs(1),
		RunE: timed("spatial-validation report", func(cmd *cobra.Command, args []string) error {
			store, err := env.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			table, err := validation.BuildReport(cmd.Context(), store, ref)
			if err != nil {
				return err
			}
			return table.WriteText(env.Out)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "report-csv <filepath>",
		Short: "Write the validation report of all harvested objects as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: timed("spatial-validation report-csv", func(cmd *cobra.Command, args []string) error {
			store, err := env.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			table, err := validation.BuildReport(cmd.Context(), store, "")
			if err != nil {
				return err
			}
			if err := table.WriteCSVFile(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Out, "Wrote %d rows to %s\n", len(table.Rows), args[0])
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "file <filepath>",
		Short: "Validate a metadata file against the configured profiles",
		Args:  cobra.ExactArgs(1),
		RunE: timed("spatial-validation file", func(_ *cobra.Command, args []string) error {
			validators, err := validation.New(env.config().Validation.Profiles)
			if err != nil {
				return err
			}
			res, err := validators.ValidateFile(args[0])
			if err != nil {
				return err
			}
			return validation.WriteSummary(env.Out, res)
		}),
	})

	return cmd
}
