package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/summarizer"
)

func newSummarizeCmd() *cobra.Command {
	var (
		pages       string
		output      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "summarize <pdf>",
		Short: "Summarize a PDF section by section",
		Long: `Splits the PDF into sections, asks the model for a flat bullet summary
of each and writes the successful summaries to the summary file, replacing
its previous content. Sections that fail are counted and skipped.

Pages are 1-based, e.g. --pages 1,3-5.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var selected []int
			if pages != "" {
				var err error
				if selected, err = document.ParsePageList(pages); err != nil {
					return err
				}
			}

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup(ctx, a)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Extracting %s...\n", args[0])
			doc, err := a.Extractor.Extract(ctx, args[0])
			if err != nil {
				return fmt.Errorf("Failed to load document: %w", err)
			}

			opts := a.SummaryOptions()
			opts.Pages = selected
			if cmd.Flags().Changed("concurrency") {
				opts.Concurrency = concurrency
			}

			report, err := a.SummarizerFor(output).Summarize(ctx, doc, opts)
			if err != nil {
				return fmt.Errorf("Summarization failed: %w", err)
			}
			printReport(out, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&pages, "pages", "", "1-based pages to summarize, e.g. 1,3-5")
	cmd.Flags().StringVarP(&output, "output", "o", "", "summary file (default from configuration)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "parallel model calls")
	return cmd
}

func printReport(out io.Writer, report *summarizer.Report) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary complete!")
	fmt.Fprintf(out, "  Chunks: %d/%d\n", report.Succeeded, report.TotalChunks)
	fmt.Fprintf(out, "  Duration: %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Output: %s\n", report.OutputPath)

	if report.Failed > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Failed chunks:")
		for _, r := range report.Records {
			if !r.Succeeded {
				fmt.Fprintf(out, "  - chunk %d (page %d): %v\n", r.SequenceID, r.SourcePage+1, r.Err)
			}
		}
	}
}
