package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and check the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup(ctx, a)

			cfg := a.Config
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model server:    %s\n", cfg.LLM.BaseURL)
			fmt.Fprintf(out, "Chat model:      %s\n", cfg.LLM.ChatModel)
			fmt.Fprintf(out, "Embedding model: %s\n", cfg.LLM.EmbeddingModel)
			fmt.Fprintf(out, "Index chunking:  %d/%d runes, top %d\n", cfg.Index.ChunkSize, cfg.Index.Overlap, cfg.Index.TopK)
			fmt.Fprintf(out, "Summary chunking: %d/%d runes -> %s\n", cfg.Summary.ChunkSize, cfg.Summary.Overlap, cfg.Summary.Output)
			if cfg.Metrics.Enabled {
				fmt.Fprintf(out, "Metrics:         %s\n", cfg.Metrics.PushgatewayURL)
			} else {
				fmt.Fprintln(out, "Metrics:         disabled")
			}

			if err := a.Index.Health(ctx); err != nil {
				fmt.Fprintf(out, "Vector store:    %s (unhealthy: %v)\n", cfg.Store.Backend, err)
				return fmt.Errorf("vector store health check failed: %w", err)
			}
			fmt.Fprintf(out, "Vector store:    %s (healthy)\n", cfg.Store.Backend)
			return nil
		},
	}
}
