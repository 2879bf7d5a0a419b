// Package cli provides the sercha-rag command line interface.
package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/config"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// Backend holds the wired services commands run against.
type Backend struct {
	Search    driving.SearchService
	Documents driving.DocumentService
	Indexer   driving.IndexService
	Tasks     driving.TaskService

	// Serve runs the HTTP server and/or worker selected by the run mode
	// until ctx is cancelled
	Serve func(ctx context.Context) error

	// Close releases connections. Optional.
	Close func() error
}

// BootstrapOptions tunes wiring for a single command.
type BootstrapOptions struct {
	// Progress receives per-file indexing progress. Optional.
	Progress func(services.IndexProgress)
}

// Bootstrapper wires a Backend from configuration.
type Bootstrapper func(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts BootstrapOptions) (*Backend, error)

// Options configures the root command.
type Options struct {
	Version   string
	Bootstrap Bootstrapper
	// VespaSchema renders the Vespa schema for a dimension. The
	// vespa-schema command is omitted when nil.
	VespaSchema func(dims int) (string, error)
}

// state is shared by all subcommands of one invocation.
type state struct {
	opts       Options
	configFile string
	envFile    string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCommand builds the sercha-rag command tree.
func NewRootCommand(opts Options) *cobra.Command {
	st := &state{opts: opts}

	root := &cobra.Command{
		Use:   "sercha-rag",
		Short: "Session-scoped document retrieval",
		Long: `sercha-rag indexes uploaded documents per session and answers semantic
search queries over them, optionally re-ranked, with 3-D coordinates for
visualization.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&st.configFile, "config", "c", "", "TOML config file (default $SERCHA_CONFIG)")
	root.PersistentFlags().StringVar(&st.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		newServeCmd(st),
		newReindexCmd(st),
		newDeleteSessionCmd(st),
		newStatsCmd(st),
		newSearchCmd(st),
		newMCPCmd(st),
		newVersionCmd(st),
	)
	if opts.VespaSchema != nil {
		root.AddCommand(newVespaSchemaCmd(st))
	}

	return root
}

// load reads configuration and builds the logger. Logs go to stderr so
// stdout stays clean for command output and the MCP stdio transport.
func (st *state) load(cmd *cobra.Command) error {
	cfg, err := config.Load(st.configFile, st.envFile)
	if err != nil {
		return err
	}
	st.cfg = cfg
	st.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(st.logger)
	return nil
}

// backend bootstraps services and returns a release func.
func (st *state) backend(ctx context.Context, opts BootstrapOptions) (*Backend, func(), error) {
	if st.opts.Bootstrap == nil {
		return nil, nil, errors.New("no backend configured")
	}
	b, err := st.opts.Bootstrap(ctx, st.cfg, st.logger, opts)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if b.Close != nil {
			if err := b.Close(); err != nil {
				st.logger.Warn("closing backend", "error", err)
			}
		}
	}
	return b, release, nil
}
