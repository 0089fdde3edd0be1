package cli

import (
	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/spatial"
)

func newSpatialCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spatial",
		Short: "Utilities for the CKAN spatial extension",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "initdb [srid]",
		Short: "Create the package_extent table, optionally with a specific SRID",
		Args:  cobra.MaximumNArgs(1),
		RunE: timed("spatial initdb", func(cmd *cobra.Command, args []string) error {
			store, err := env.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := spatial.NewService(store, env.config().Spatial.SRID, env.Logger, env.Out)
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			srid, err := svc.ParseSRID(arg)
			if err != nil {
				return err
			}
			return svc.InitDB(cmd.Context(), srid)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "extents",
		Short: "Create or update the extent geometry of every package with a spatial extra",
		Args:  cobra.NoArgs,
		RunE: timed("spatial extents", func(cmd *cobra.Command, _ []string) error {
			store, err := env.store(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := spatial.NewService(store, env.config().Spatial.SRID, env.Logger, env.Out)
			_, err = svc.UpdateExtents(cmd.Context())
			return err
		}),
	})

	return cmd
}
