package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newDeleteSessionCmd(st *state) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "delete-session <session>",
		Short: "Remove every record, bookkeeping row and file of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, release, err := st.backend(cmd.Context(), BootstrapOptions{})
			if err != nil {
				return err
			}
			defer release()

			result, err := b.Documents.DeleteSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			if asJSON {
				return outputJSON(cmd, result)
			}
			cmd.Printf("Session %s %s: %d records, %d files\n",
				result.SessionID, result.Status, result.DeletedRecords, result.DeletedFiles)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	return cmd
}

func newStatsCmd(st *state) *cobra.Command {
	var (
		sessionID string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count indexed documents and chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, release, err := st.backend(cmd.Context(), BootstrapOptions{})
			if err != nil {
				return err
			}
			defer release()

			stats, err := b.Documents.Stats(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			if asJSON {
				return outputJSON(cmd, stats)
			}

			cmd.Printf("Documents: %d\n", stats.TotalDocs)
			cmd.Printf("Chunks:    %d\n", stats.TotalChunks)
			exts := make([]string, 0, len(stats.ByExtension))
			for ext := range stats.ByExtension {
				exts = append(exts, ext)
			}
			sort.Strings(exts)
			for _, ext := range exts {
				cmd.Printf("  %-6s %d\n", ext, stats.ByExtension[ext])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to count (default: all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
