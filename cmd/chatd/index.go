package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jihoon-dev/portfolio-chat/config"
	"github.com/jihoon-dev/portfolio-chat/internal/index"
	openai_provider "github.com/jihoon-dev/portfolio-chat/provider/openai"
)

// indexCMD rebuilds the knowledge index from the authored documents. It is
// an offline tool: any embedding failure aborts the run with a non-zero
// exit, and the previous artifact stays in place.
func indexCMD() *cobra.Command {
	var cfgPath, docsPath, outPath string
	idx := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge index from source documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if docsPath == "" {
				docsPath = cfg.Index.DocumentsPath
			}
			if outPath == "" {
				outPath = cfg.Index.Path
			}

			logger := log.New(log.Writer(), "[INDEXER] ", log.LstdFlags)
			docs, err := index.LoadDocuments(docsPath)
			if err != nil {
				return err
			}
			llm := openai_provider.New(
				cfg.Provider.APIKey,
				cfg.Provider.BaseURL,
				cfg.Provider.CompletionModel,
				cfg.Provider.EmbeddingModel,
				cfg.Provider.Temperature,
				cfg.Provider.MaxTokens,
				cfg.Provider.Timeout,
			)
			b := &index.Builder{Provider: llm, Model: cfg.Provider.EmbeddingModel, Logger: logger}
			built, err := b.Build(cmd.Context(), docs)
			if err != nil {
				return fmt.Errorf("indexing aborted: %w", err)
			}
			if err := index.WriteIndex(built, outPath); err != nil {
				return err
			}
			logger.Printf("wrote %d chunks from %d documents to %s", len(built.Chunks), len(docs), outPath)
			return nil
		},
	}
	idx.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	idx.Flags().StringVar(&docsPath, "documents", "", "documents file (default from config)")
	idx.Flags().StringVar(&outPath, "out", "", "index output path (default from config)")
	return idx
}
