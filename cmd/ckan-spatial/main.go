// Package main is the entry point for the ckan-spatial binary.
// It provides the spatial, spatial-validation and ckan-pycsw commands and a
// small HTTP server for spatial search.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/cli"
	"github.com/ckan/ckanext-spatial/pkg/config"
)

func main() {
	if err := newRootCmd(cli.NewEnv()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for ckan-spatial
func newRootCmd(env *cli.Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ckan-spatial",
		Short: "Spatial commands for CKAN",
		Long: `Spatial tooling for a CKAN catalogue.

Manages dataset extents in a PostGIS enabled CKAN database, reports on the
validation of harvested ISO 19139 metadata and keeps a pycsw CSW repository
in step with the harvested datasets.

Example:
  ckan-spatial spatial initdb 4326
  ckan-spatial ckan-pycsw load -p /etc/pycsw/default.cfg -u https://data.example.org`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return env.Init(cmd.Context(), cmd.Root().PersistentFlags().Changed("config"))
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return env.Close(ctx)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env.ConfigPath, "config", "c", config.DefaultPath, "Path to the ckan-spatial configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&env.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(cli.Commands(env)...)
	rootCmd.AddCommand(cli.ServeCommand(env))

	return rootCmd
}
