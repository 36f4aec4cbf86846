// Command build-index extracts sections from the PDFs listed in input.json,
// embeds them and writes the section index with its metadata store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-docsearch/engine/embed"
	"github.com/WessleyAI/wessley-docsearch/engine/graph"
	"github.com/WessleyAI/wessley-docsearch/engine/ingest"
	"github.com/WessleyAI/wessley-docsearch/engine/semantic"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
	"github.com/WessleyAI/wessley-docsearch/pkg/config"
	"github.com/WessleyAI/wessley-docsearch/pkg/logging"
	"github.com/WessleyAI/wessley-docsearch/pkg/metrics"
	"github.com/WessleyAI/wessley-docsearch/pkg/mid"
	"github.com/WessleyAI/wessley-docsearch/pkg/natsutil"
	"github.com/WessleyAI/wessley-docsearch/pkg/pdf"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "build-index",
		Short:         "Build the section index from the PDFs listed in input.json",
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
		slog.Error("build-index failed", "error", err)
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
	reg := metrics.New()

	if cfg.Metrics.Addr != "" {
		requests := reg.Counter("docsearch_metrics_requests_total", "Scrapes of the metrics endpoint.")
		h := mid.Chain(reg.Handler(),
			mid.Recover(log),
			mid.Logger(log),
			mid.Counted(requests.Inc),
			mid.OTel("metrics"),
			mid.ReadOnly(),
		)
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(srvCtx, cfg.Metrics.Addr, h, log); err != nil {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
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

	mirrors, closeMirrors := openMirrors(ctx, cfg, log)
	defer closeMirrors()

	deps := ingest.Deps{
		Source:   pdf.NewReader(log),
		Provider: provider,
		Mirrors:  mirrors,
		Logger:   log,
		Metrics:  reg,
		Workers:  cfg.Workers,
	}
	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "docsearch-build-index", log)
		if err != nil {
			log.Warn("nats unavailable, build event disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			defer nc.Close()
			deps.Events = nc
		}
	}

	var (
		barOnce sync.Once
		bar     *progressbar.ProgressBar
	)
	deps.Progress = func(done, total int) {
		barOnce.Do(func() { bar = newProgressBar(total, "Processing documents") })
		_ = bar.Set(done)
	}

	color.Blue("\nBuilding index from %s\n", paths.Input)
	report, err := ingest.Run(ctx, paths, deps)
	if bar != nil {
		_ = bar.Finish()
	}
	if cfg.Metrics.File != "" {
		if werr := reg.WriteFile(cfg.Metrics.File); werr != nil {
			log.Warn("write metrics file", "path", cfg.Metrics.File, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	color.Green("\nSuccessfully processed %d documents with %d sections.\n",
		report.Stats.ProcessedDocuments, report.Stats.TotalSections)
	fmt.Printf("Index saved to %s (dimension %d)\n", report.IndexPath, report.Dimension)
	fmt.Printf("Metadata saved to %s\n", report.MetadataPath)
	return nil
}

// openMirrors connects every configured mirror. A mirror that cannot connect
// is logged and left out; the local index is built regardless.
func openMirrors(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]ingest.Mirror, func()) {
	var (
		mirrors []ingest.Mirror
		closers []func() error
	)
	if cfg.Qdrant.Addr != "" {
		q, err := semantic.NewQdrant(cfg.Qdrant.Addr, cfg.Qdrant.Collection, log)
		if err != nil {
			log.Warn("qdrant mirror disabled", "addr", cfg.Qdrant.Addr, "error", err)
		} else {
			mirrors = append(mirrors, q)
			closers = append(closers, q.Close)
		}
	}
	if cfg.Pgvector.URL != "" {
		p, err := semantic.NewPostgres(ctx, cfg.Pgvector.URL, cfg.Pgvector.Table, log)
		if err != nil {
			log.Warn("pgvector mirror disabled", "table", cfg.Pgvector.Table, "error", err)
		} else {
			mirrors = append(mirrors, p)
			closers = append(closers, p.Close)
		}
	}
	if cfg.Neo4j.URI != "" {
		g, err := graph.New(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database, log)
		if err != nil {
			log.Warn("neo4j mirror disabled", "uri", cfg.Neo4j.URI, "error", err)
		} else {
			mirrors = append(mirrors, g)
			closers = append(closers, func() error { return g.Close(context.Background()) })
		}
	}
	return mirrors, func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			log.Warn("close mirrors", "error", err)
		}
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
