package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/rag"
)

func newAskCmd() *cobra.Command {
	var (
		summarize bool
		question  string
	)
	cmd := &cobra.Command{
		Use:   "ask <pdf>",
		Short: "Load a PDF and answer questions about it",
		Long: `Loads and indexes the PDF, then reads questions from stdin until "exit".
Answers are streamed as they are generated and followed by the cited pages.

With --question a single question is answered and the command exits.
With --summarize the document is also summarized into the summary file
before the first question.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup(ctx, a)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loading %s...\n", args[0])
			start := time.Now()
			if err := a.Session.Load(ctx, args[0]); err != nil {
				return fmt.Errorf("Failed to load document: %w", err)
			}
			status := a.Session.Status()
			fmt.Fprintf(out, "Indexed %d pages into %d segments in %s\n",
				status.Pages, status.Segments, time.Since(start).Round(time.Millisecond))

			if summarize {
				report, err := a.Summarizer.Summarize(ctx, a.Session.Document(), a.SummaryOptions())
				if err != nil {
					return fmt.Errorf("Summarization failed: %w", err)
				}
				printReport(out, report)
			}

			if question != "" {
				return answer(ctx, out, a.Session, question)
			}
			return interactive(ctx, cmd.InOrStdin(), out, a.Session)
		},
	}
	cmd.Flags().BoolVar(&summarize, "summarize", false, "summarize the document before answering")
	cmd.Flags().StringVarP(&question, "question", "q", "", "answer one question and exit")
	return cmd
}

// interactive answers questions line by line until exit, EOF or ctx is
// cancelled. Cancellation is honoured even while waiting for input.
func interactive(ctx context.Context, in io.Reader, out io.Writer, session *rag.Session) error {
	lines, scanErr := readLines(ctx, in)
	for {
		fmt.Fprint(out, "\nQuestion (or 'exit'): ")

		var q string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			q = strings.TrimSpace(line)
		}

		switch {
		case q == "":
			continue
		case strings.EqualFold(q, "exit") || strings.EqualFold(q, "quit"):
			return nil
		}

		if err := answer(ctx, out, session, q); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// readLines scans in on its own goroutine. The lines channel is closed at EOF
// or once ctx is done; a scan error is sent on the second channel first.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()
	return lines, scanErr
}

// answer streams one answer to out followed by its cited pages.
func answer(ctx context.Context, out io.Writer, session *rag.Session, question string) error {
	stream, err := session.AnswerStream(ctx, question)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Fprintln(out)
	for stream.Next() {
		fmt.Fprint(out, stream.Current())
	}
	fmt.Fprintln(out)
	if err := stream.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("answer interrupted: %w", err)
	}

	pages := document.ToDisplay(stream.CitedPages())
	if len(pages) == 0 {
		fmt.Fprintln(out, "Sources: none")
		return nil
	}
	fmt.Fprintf(out, "Sources: pages %s\n", joinInts(pages))
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
