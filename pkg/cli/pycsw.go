package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/ckanapi"
	"github.com/ckan/ckanext-spatial/pkg/pycsw"
)

type pycswOptions struct {
	configPath string
	ckanURL    string
}

// url returns the CKAN URL with exactly one trailing slash.
func (o *pycswOptions) url() string {
	return ckanapi.NormalizeURL(o.ckanURL)
}

// ckanURLFlag registers -u/--ckan_url on the commands that talk to CKAN.
func (o *pycswOptions) ckanURLFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.ckanURL, "ckan_url", "u", ckanapi.DefaultURL, "CKAN instance to import the datasets from")
}

func newPycswCmd(env *Env) *cobra.Command {
	opts := &pycswOptions{}
	cmd := &cobra.Command{
		Use:   "ckan-pycsw",
		Short: "Manage the CKAN side of a pycsw CSW server",
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "pycsw_config", "p", pycsw.DefaultConfigPath, "pycsw config file to use")

	withRepository := func(fn func(*pycsw.Config, *pycsw.Repository) error) error {
		cfg, err := pycsw.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
		repo, err := pycsw.OpenRepository(cfg.Database, cfg.Table)
		if err != nil {
			return err
		}
		defer repo.Close()
		return fn(cfg, repo)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Create the records table with the CKAN columns",
		Args:  cobra.NoArgs,
		RunE: timed("ckan-pycsw setup", func(cmd *cobra.Command, _ []string) error {
			return withRepository(func(cfg *pycsw.Config, repo *pycsw.Repository) error {
				if err := repo.Setup(cmd.Context()); err != nil {
					return err
				}
				env.Logger.Info("Records table ready", "table", cfg.Table, "config", cfg.Path)
				env.App.EnsureMetrics()
				return nil
			})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every record from the records table",
		Args:  cobra.NoArgs,
		RunE: timed("ckan-pycsw clear", func(cmd *cobra.Command, _ []string) error {
			return withRepository(func(cfg *pycsw.Config, repo *pycsw.Repository) error {
				n, err := repo.Clear(cmd.Context())
				if err != nil {
					return err
				}
				env.Logger.Info("Cleared records", "table", cfg.Table, "deleted", n)
				return nil
			})
		}),
	})

	load := &cobra.Command{
		Use:   "load",
		Short: "Load harvested CKAN datasets into the records table",
		Args:  cobra.NoArgs,
		RunE: timed("ckan-pycsw load", func(cmd *cobra.Command, _ []string) error {
			return withRepository(func(_ *pycsw.Config, repo *pycsw.Repository) error {
				syncer := pycsw.NewSyncer(repo, env.NewCatalog(opts.url()), env.Logger)
				res, err := syncer.Load(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(env.Out, "Gathered %d datasets: %d inserted, %d updated, %d deleted, %d skipped, %d failed\n",
					res.Gathered, res.Inserted, res.Updated, res.Deleted, res.Skipped, res.Failed)
				return err
			})
		}),
	}
	opts.ckanURLFlag(load)
	cmd.AddCommand(load)

	setKeywords := &cobra.Command{
		Use:   "set-keywords",
		Short: "Set the service keywords from the most used CKAN tags",
		Args:  cobra.NoArgs,
		RunE: timed("ckan-pycsw set-keywords", func(cmd *cobra.Command, _ []string) error {
			cfg, err := pycsw.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			syncer := pycsw.NewSyncer(nil, env.NewCatalog(opts.url()), env.Logger)
			keywords, err := syncer.SetKeywords(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Out, "Keywords set: %s\n", keywords)
			return err
		}),
	}
	opts.ckanURLFlag(setKeywords)
	cmd.AddCommand(setKeywords)

	return cmd
}
