// Command query ranks the indexed sections against the persona and task in
// input.json and writes the top results to the output JSON.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-docsearch/engine/catalog"
	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/embed"
	"github.com/WessleyAI/wessley-docsearch/engine/index"
	"github.com/WessleyAI/wessley-docsearch/engine/retrieval"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
	"github.com/WessleyAI/wessley-docsearch/pkg/config"
	"github.com/WessleyAI/wessley-docsearch/pkg/logging"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "query",
		Short:         "Rank indexed sections for the persona and task in input.json",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to docsearch.yaml")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("query failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log, os.Stderr)
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error("invalid config", "field", e.Field, "error", e.Message)
		}
		return fmt.Errorf("config: %d invalid settings", len(errs))
	}
	paths := workspace.New(cfg.BaseDir)

	in, err := workspace.LoadInput(paths.Input)
	if err != nil {
		return err
	}
	if err := domain.ValidateForQuery(in); err != nil {
		return err
	}

	cat, err := catalog.Load(paths.Metadata)
	if err != nil {
		return err
	}
	idx, err := index.Load(paths.Index)
	if err != nil {
		return err
	}

	provider, err := embed.New(embed.Options{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		BatchSize: cfg.Embedding.BatchSize,
		Rate:      cfg.Embedding.Rate,
		Timeout:   cfg.Embedding.Timeout,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	if st, ok := embed.As[embed.Stateful](provider); ok {
		if err := st.Load(paths.Vocab); err != nil {
			return fmt.Errorf("query: load provider state: %w", err)
		}
	}

	engine, err := retrieval.New(provider, idx, cat.Texts, log)
	if err != nil {
		return err
	}
	ranked, err := engine.Retrieve(ctx, in.Persona.Role, in.JobToBeDone.Task, cfg.Index.TopK)
	if err != nil {
		return err
	}

	out := retrieval.BuildOutput(in, ranked, time.Now())
	if err := workspace.WriteJSON(paths.Output, out); err != nil {
		return err
	}

	color.Green("\nRanked %d of %d sections for %q\n", len(ranked), idx.Len(), in.Persona.Role)
	for _, r := range ranked {
		fmt.Printf("  %d. %s (%s, page %d)\n", r.Rank, r.Section.Title, r.Section.Document, r.Section.PageNumber)
	}
	fmt.Printf("Output saved to %s\n", paths.Output)
	return nil
}
