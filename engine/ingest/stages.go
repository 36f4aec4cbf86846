package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/layout"
	"github.com/WessleyAI/wessley-docsearch/engine/metadata"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
	"github.com/WessleyAI/wessley-docsearch/pkg/metrics"
	"github.com/WessleyAI/wessley-docsearch/pkg/pdf"
)

// Resolve checks the document name and that its PDF exists.
func Resolve(paths workspace.Paths) fn.Stage[DocumentJob, DocumentJob] {
	return func(_ context.Context, job DocumentJob) fn.Result[DocumentJob] {
		if job.Name == "" {
			return fn.Err[DocumentJob](fmt.Errorf("ingest: document %d has no filename: %w", job.Position, domain.ErrMalformedInput))
		}
		if err := domain.ValidateDocumentName(job.Name); err != nil {
			return fn.Err[DocumentJob](fmt.Errorf("ingest: %w", err))
		}
		job.Path = paths.PDF(job.Name)
		if err := workspace.RequireFile(job.Path); err != nil {
			return fn.Err[DocumentJob](fmt.Errorf("ingest: %w", err))
		}
		return fn.Ok(job)
	}
}

// NewExtract creates a stage that reads the pages of a PDF.
func NewExtract(src pdf.Source) fn.Stage[DocumentJob, extracted] {
	return fn.TryStage(func(_ context.Context, job DocumentJob) (extracted, error) {
		pages, err := src.Pages(job.Path)
		if err != nil {
			return extracted{}, fmt.Errorf("ingest: extract %s: %w", job.Name, err)
		}
		return extracted{DocumentJob: job, Pages: pages}, nil
	})
}

// NewSegment creates a stage that splits pages into sections and merges the
// filename metadata into each of them.
func NewSegment(log *slog.Logger) fn.Stage[extracted, DocumentResult] {
	return fn.MapStage(func(doc extracted) DocumentResult {
		sections := layout.Segment(doc.Pages)
		md := metadata.Extract(doc.Name, log)
		return DocumentResult{Name: doc.Name, Sections: metadata.Merge(sections, md)}
	})
}

// LoggedStage wraps a stage with debug entry/exit logs and a duration
// histogram labelled by stage name.
func LoggedStage[In, Out any](name string, stage fn.Stage[In, Out], log *slog.Logger, reg *metrics.Registry) fn.Stage[In, Out] {
	hist := reg.Histogram(metrics.WithLabels(MetricStageSeconds, "stage", name), "Duration of pipeline stages.", nil)
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		r := stage(ctx, in)
		hist.Since(start)
		log.Debug("stage.exit", "stage", name, "duration", time.Since(start), "ok", r.IsOk())
		return r
	}
}

// NewDocumentPipeline composes resolve, extract and segment for one
// document.
func NewDocumentPipeline(paths workspace.Paths, deps Deps) fn.Stage[DocumentJob, DocumentResult] {
	log, reg := deps.Logger, deps.Metrics
	resolved := LoggedStage("resolve", Resolve(paths), log, reg)
	read := fn.Then(resolved, LoggedStage("extract", NewExtract(deps.Source), log, reg))
	segmented := fn.Then(read, LoggedStage("segment", NewSegment(log), log, reg))
	return fn.TracedStage("ingest.document", segmented)
}
