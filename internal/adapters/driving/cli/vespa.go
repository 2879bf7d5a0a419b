package cli

import (
	"github.com/spf13/cobra"
)

func newVespaSchemaCmd(st *state) *cobra.Command {
	var dims int

	cmd := &cobra.Command{
		Use:   "vespa-schema",
		Short: "Print the Vespa document schema for the configured embedder",
		Long: `Prints the schema definition to deploy before using VECTOR_BACKEND=vespa.
The embedding tensor size follows EMBEDDING_DIMENSIONS unless --dims is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dims <= 0 {
				dims = st.cfg.Embedding.Dimensions
			}
			schema, err := st.opts.VespaSchema(dims)
			if err != nil {
				return err
			}
			cmd.Print(schema)
			return nil
		},
	}

	cmd.Flags().IntVar(&dims, "dims", 0, "embedding dimensions (default $EMBEDDING_DIMENSIONS)")
	return cmd
}
