package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/batch"
	ghclient "github.com/bull/docqa/internal/github"
)

func newSummarizeRepoCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "summarize-repo <github://owner/repo/dir>",
		Short: "Summarize every PDF in a GitHub repository directory",
		Long: `Lists the PDFs below a repository directory at its latest commit (or the
?ref= given in the location) and writes one summary file per document
into the output directory.

Environment variables:
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start := time.Now()

			loc, err := ghclient.ParseLocation(args[0])
			if err != nil {
				return err
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup(ctx, a)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Summarizing PDFs in %s...\n", loc)
			pipeline := batch.NewPipeline(a.Fetcher, a.Extractor, a.SummarizerFor, a.Logger)
			result, err := pipeline.SummarizeAll(ctx, loc, outDir, a.SummaryOptions())
			if err != nil {
				return fmt.Errorf("Batch summary failed: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Batch summary complete!")
			fmt.Fprintf(out, "  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
			fmt.Fprintf(out, "  Chunks: %d\n", result.TotalChunks)
			fmt.Fprintf(out, "  Commit: %s\n", result.CommitSHA)
			fmt.Fprintf(out, "  Output: %s\n", outDir)

			if len(result.FailedDocs) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Failed documents:")
				for _, failed := range result.FailedDocs {
					fmt.Fprintf(out, "  - %s: %s\n", failed.Path, failed.Reason)
				}
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Total time: %s\n", time.Since(start).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "summaries", "directory for the summary files")
	return cmd
}
