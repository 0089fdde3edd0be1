package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ckan/ckanext-spatial/pkg/config"
	"github.com/ckan/ckanext-spatial/pkg/logging"
)

func newServeCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the health check, spatial search and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := env.config()
			if cfg.Database.URL != "" {
				store, err := env.store(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				env.App.SetSearcher(store)
			} else {
				env.Logger.Warn("No CKAN database configured, spatial search is disabled")
			}

			handler := serveHandler(env)
			if stopWatch := watchConfig(env); stopWatch != nil {
				defer stopWatch()
			}

			srv := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				env.Logger.Info("Starting ckan-spatial server", "listen", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			env.Logger.Info("Shutting down ckan-spatial server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// serveHandler attaches the metrics unless server.metrics is off and returns
// the traced application.
func serveHandler(env *Env) http.Handler {
	if env.config().Server.Metrics {
		env.App.EnsureMetrics()
	}
	return env.App.Handler()
}

// watchConfig reloads the log level when the CLI config file changes. It
// returns nil when there is no file to watch.
func watchConfig(env *Env) func() {
	loader, err := config.NewLoader(env.ConfigPath, env.Logger)
	if err != nil {
		return nil
	}
	if _, err := loader.Load(); err != nil {
		return nil
	}

	loader.OnError(func(error) {
		if m := env.App.Metrics(); m != nil {
			m.RecordConfigReload("error")
		}
	})
	err = loader.Watch(func(cfg *config.Config) {
		level := cfg.Logging.Level
		if env.LogLevel != "" {
			level = env.LogLevel
		}
		logging.SetLevel(level)
		if m := env.App.Metrics(); m != nil {
			m.RecordConfigReload("success")
		}
	})
	if err != nil {
		env.Logger.Warn("Config watch disabled", "path", loader.Path(), "error", err)
		return nil
	}
	return func() { _ = loader.Close() }
}
