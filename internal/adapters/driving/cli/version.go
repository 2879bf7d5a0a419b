package cli

import (
	"github.com/spf13/cobra"
)

func newVersionCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// No configuration needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("sercha-rag version %s\n", st.opts.Version)
		},
	}
}
