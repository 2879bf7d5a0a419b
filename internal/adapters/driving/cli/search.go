package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func newSearchCmd(st *state) *cobra.Command {
	var (
		sessionID  string
		topK       int
		candidateK int
		rerank     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Embeds the query, retrieves candidate chunks from the session and
re-ranks them when a reranker is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			b, release, err := st.backend(cmd.Context(), BootstrapOptions{})
			if err != nil {
				return err
			}
			defer release()

			opts := domain.SearchOptions{
				SessionID:  sessionID,
				TopK:       topK,
				CandidateK: candidateK,
			}
			if cmd.Flags().Changed("rerank") {
				opts.Rerank = &rerank
			}

			result, err := b.Search.Search(cmd.Context(), query, opts)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return outputJSON(cmd, result)
			}
			printSearchResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to search (default: all)")
	cmd.Flags().IntVarP(&topK, "top-k", "n", 0, "number of results (default $TOP_K)")
	cmd.Flags().IntVar(&candidateK, "candidate-k", 0, "stage-1 candidate pool (default $CANDIDATE_K)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "force re-ranking on or off")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func printSearchResult(cmd *cobra.Command, result *domain.SearchResult) {
	if len(result.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, hit := range result.Results {
		// Format: [N] file p.page (distance)
		cmd.Printf("  [%d] %s p.%d (%.3f", i+1, hit.Filename, hit.Page, hit.Score)
		if hit.RerankScore != nil {
			cmd.Printf(", rerank %.3f", *hit.RerankScore)
		}
		cmd.Println(")")
		if hit.SessionID != "" {
			cmd.Printf("      Session: %s\n", hit.SessionID)
		}
		if hit.Preview != "" {
			cmd.Printf("      %s\n", hit.Preview)
		}
		cmd.Println()
	}
}
