package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/config"
)

func newServeCmd(st *state) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and/or the background worker",
		Long: `Runs the HTTP API, the background worker, or both.

The worker consumes indexing tasks from the queue (Redis streams, or the
Postgres tasks table), runs the periodic sweep scheduler and watches the
data dir for uploads.

Examples:
  sercha-rag serve                 # api + worker (RUN_MODE, default all)
  sercha-rag serve --mode api
  sercha-rag serve --mode worker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != "" {
				st.cfg.Server.RunMode = mode
				if err := st.cfg.Validate(); err != nil {
					return err
				}
			}

			b, release, err := st.backend(cmd.Context(), BootstrapOptions{})
			if err != nil {
				return err
			}
			defer release()

			if b.Serve == nil {
				return errors.New("backend cannot serve")
			}
			st.logger.Info("sercha-rag starting", "version", st.opts.Version, "mode", st.cfg.Server.RunMode)
			return b.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "run mode: "+config.ModeAPI+", "+config.ModeWorker+" or "+config.ModeAll+" (default $RUN_MODE)")
	return cmd
}
