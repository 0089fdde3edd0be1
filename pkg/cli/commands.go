package cli

import "github.com/spf13/cobra"

// Commands returns the spatial, spatial-validation and ckan-pycsw groups.
func Commands(env *Env) []*cobra.Command {
	return []*cobra.Command{
		newSpatialCmd(env),
		newValidationCmd(env),
		newPycswCmd(env),
	}
}

// ServeCommand returns the serve command.
func ServeCommand(env *Env) *cobra.Command {
	return newServeCmd(env)
}
