package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ErrIndexFailed is returned when a run indexed nothing and recorded failures
var ErrIndexFailed = errors.New("reindex failed")

func newReindexCmd(st *state) *cobra.Command {
	var (
		mode       string
		async      bool
		asJSON     bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "reindex [session]",
		Short: "Rebuild or catch up the index of a session",
		Long: `Indexes the files under DATA_DIR/<session>. Without a session every
session is covered.

--mode full clears the session partition and re-indexes everything on disk.
--mode incremental indexes only new or changed files and drops records of
deleted files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexMode, err := domain.ParseIndexMode(mode)
			if err != nil {
				return fmt.Errorf("mode must be full or incremental: %w", err)
			}
			var sessionID string
			if len(args) == 1 {
				sessionID = args[0]
			}

			var progress *progressReporter
			opts := BootstrapOptions{}
			if !async && !asJSON && !noProgress && progressEnabled(cmd.ErrOrStderr()) {
				progress = newProgressReporter(cmd.ErrOrStderr())
				opts.Progress = progress.Report
			}

			b, release, err := st.backend(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer release()

			if async {
				return submitReindex(cmd, b, sessionID, indexMode, asJSON)
			}

			result, err := b.Indexer.Reindex(cmd.Context(), sessionID, indexMode)
			if progress != nil {
				progress.Finish()
			}
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			if asJSON {
				if err := outputJSON(cmd, result); err != nil {
					return err
				}
			} else {
				printIndexResult(cmd, result)
			}
			if result.Status == domain.IndexStatusFailed {
				return ErrIndexFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.IndexModeFull), "full or incremental")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue a task for the worker instead of indexing here")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func submitReindex(cmd *cobra.Command, b *Backend, sessionID string, mode domain.IndexMode, asJSON bool) error {
	task := domain.NewIndexAllTask(mode)
	if sessionID != "" {
		if err := domain.ValidateSessionID(sessionID); err != nil {
			return err
		}
		task = domain.NewIndexSessionTask(sessionID, mode)
	}

	task, err := b.Tasks.Submit(cmd.Context(), task)
	if err != nil {
		return fmt.Errorf("failed to submit task: %w", err)
	}
	if asJSON {
		return outputJSON(cmd, task)
	}
	cmd.Printf("Task %s %s (%s)\n", task.ID, task.Status, task.Type)
	return nil
}

func printIndexResult(cmd *cobra.Command, r *domain.IndexResult) {
	cmd.Printf("Session %s: %s\n", sessionLabel(r.SessionID), r.Status)
	cmd.Printf("  mode:     %s\n", r.Mode)
	cmd.Printf("  indexed:  %d files, %d chunks\n", r.IndexedCount, r.ChunkCount)
	if r.SkippedCount > 0 {
		cmd.Printf("  skipped:  %d unchanged\n", r.SkippedCount)
	}
	if r.RemovedCount > 0 {
		cmd.Printf("  removed:  %d records\n", r.RemovedCount)
	}
	cmd.Printf("  duration: %.2fs\n", r.Duration)
	for _, f := range r.Failures {
		cmd.Printf("  failed:   %s (%s): %s\n", f.Path, f.State, f.Error)
	}
}
