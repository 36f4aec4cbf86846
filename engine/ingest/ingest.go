// Package ingest builds the section index: it reads input.json, extracts and
// segments every listed PDF, embeds the sections and persists the index with
// its parallel metadata store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-docsearch/engine/catalog"
	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/embed"
	"github.com/WessleyAI/wessley-docsearch/engine/index"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
	"github.com/WessleyAI/wessley-docsearch/pkg/metrics"
	"github.com/WessleyAI/wessley-docsearch/pkg/natsutil"
	"github.com/WessleyAI/wessley-docsearch/pkg/pdf"
)

const (
	// EventSubject is the NATS subject for completed builds.
	EventSubject = "docsearch.index.built"
	// DefaultWorkers bounds concurrent document extraction.
	DefaultWorkers = 4
)

// Metric names.
const (
	MetricDocuments      = "docsearch_documents_total"
	MetricProcessed      = "docsearch_documents_processed_total"
	MetricSkipped        = "docsearch_documents_skipped_total"
	MetricSections       = "docsearch_sections"
	MetricIndexDimension = "docsearch_index_dimension"
	MetricStageSeconds   = "docsearch_stage_seconds"
	MetricMirrorFailures = "docsearch_mirror_failures_total"
)

// Deps holds the collaborators of a build.
type Deps struct {
	Source   pdf.Source
	Provider embed.Provider
	Mirrors  []Mirror
	// Events receives the BuiltEvent; nil disables publishing.
	Events  natsutil.Conn
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Workers int
	// Progress is called after each document, from worker goroutines.
	Progress func(done, total int)
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Workers <= 0 {
		d.Workers = DefaultWorkers
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Source == nil {
		d.Source = pdf.NewReader(d.Logger)
	}
	return d
}

// Run executes a full build. Documents that cannot be read are logged and
// skipped; the build fails only when nothing could be indexed or the index
// cannot be written.
func Run(ctx context.Context, paths workspace.Paths, deps Deps) (Report, error) {
	deps = deps.withDefaults()
	log := deps.Logger
	if deps.Provider == nil {
		return Report{}, fmt.Errorf("ingest: no embedding provider: %w", domain.ErrEmbedding)
	}

	in, err := workspace.LoadInput(paths.Input)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: %w", err)
	}
	if len(in.Documents) == 0 {
		return Report{}, fmt.Errorf("ingest: no documents in %s: %w", paths.Input, domain.ErrEmptyResult)
	}
	if err := workspace.RequireFile(paths.PDFDir); err != nil {
		return Report{}, fmt.Errorf("ingest: pdf directory: %w", err)
	}
	log.Info("build start", "documents", len(in.Documents), "workers", deps.Workers, "provider", deps.Provider.Name())
	deps.Metrics.Counter(MetricDocuments, "Documents listed in input.json.").Add(int64(len(in.Documents)))

	sections, processed := extractAll(ctx, paths, in, deps)
	if processed == 0 {
		return Report{}, fmt.Errorf("ingest: no documents processed: %w", domain.ErrEmptyResult)
	}
	if len(sections) == 0 {
		return Report{}, fmt.Errorf("ingest: no sections extracted from %d documents: %w", processed, domain.ErrEmptyResult)
	}

	idx, err := embedSections(ctx, sections, deps)
	if err != nil {
		return Report{}, err
	}

	cat := catalog.New(sections, len(in.Documents), processed, deps.Now())
	if err := persist(paths, idx, deps.Provider, cat); err != nil {
		return Report{}, err
	}

	deps.Metrics.Gauge(MetricSections, "Sections in the index.").Set(int64(idx.Len()))
	deps.Metrics.Gauge(MetricIndexDimension, "Embedding dimension of the index.").Set(int64(idx.Dim()))
	log.Info("index saved", "path", paths.Index, "sections", idx.Len(), "dim", idx.Dim())

	report := Report{Stats: cat.Stats, Dimension: idx.Dim(), IndexPath: paths.Index, MetadataPath: paths.Metadata}
	mirror(ctx, deps, idx, sections)
	publish(ctx, deps, report)
	return report, nil
}

// stagingSuffix marks artefacts written but not yet committed.
const stagingSuffix = ".staging"

// persist writes the index, the provider state and metadata.json to staging
// siblings and commits them only once all of them are written. metadata.json
// is committed first and the index last, so a failed commit never leaves a
// new index next to an old catalog.
func persist(paths workspace.Paths, idx *index.Flat, provider embed.Provider, cat catalog.Catalog) error {
	type artefact struct {
		path  string
		write func(string) error
	}
	arts := []artefact{
		{paths.Metadata, cat.Save},
	}
	if st, ok := embed.As[embed.Stateful](provider); ok {
		arts = append(arts, artefact{paths.Vocab, st.Save})
	}
	arts = append(arts, artefact{paths.Index, func(p string) error { return index.Save(idx, p) }})

	var staged []string
	defer func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}()
	for _, a := range arts {
		tmp := a.path + stagingSuffix
		staged = append(staged, tmp)
		if err := a.write(tmp); err != nil {
			return fmt.Errorf("ingest: stage %s: %w", a.path, err)
		}
	}
	for _, a := range arts {
		if err := os.Rename(a.path+stagingSuffix, a.path); err != nil {
			return fmt.Errorf("ingest: commit %s: %v: %w", a.path, err, domain.ErrIndexIO)
		}
	}
	return nil
}

// extractAll runs the document pipeline over every entry and concatenates
// the sections in input order.
func extractAll(ctx context.Context, paths workspace.Paths, in domain.Input, deps Deps) ([]domain.Section, int) {
	jobs := make([]DocumentJob, len(in.Documents))
	for i, ref := range in.Documents {
		jobs[i] = DocumentJob{Position: i, Name: ref.ResolvedName()}
	}

	pipeline := NewDocumentPipeline(paths, deps)
	var (
		mu   sync.Mutex
		done int
	)
	results := fn.ParMapResult(jobs, deps.Workers, func(job DocumentJob) fn.Result[DocumentResult] {
		r := pipeline(ctx, job)
		if deps.Progress != nil {
			mu.Lock()
			done++
			deps.Progress(done, len(jobs))
			mu.Unlock()
		}
		return r
	})

	var sections []domain.Section
	processed := 0
	for i, r := range results {
		doc, err := r.Unwrap()
		if err != nil {
			reason := skipReason(err)
			deps.Logger.Warn("skipping document", "document", jobs[i].Name, "position", i, "reason", reason, "error", err)
			deps.Metrics.Counter(metrics.WithLabels(MetricSkipped, "reason", reason), "Documents skipped.").Inc()
			continue
		}
		processed++
		deps.Metrics.Counter(MetricProcessed, "Documents processed.").Inc()
		deps.Logger.Info("document processed", "document", doc.Name, "sections", len(doc.Sections))
		sections = append(sections, doc.Sections...)
	}
	return sections, processed
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingFile):
		return "missing_file"
	case errors.Is(err, domain.ErrMalformedInput):
		return "invalid_name"
	default:
		return "extract"
	}
}

// embedSections fits the provider when it learns from the corpus, embeds
// every section and builds the index. Vector i belongs to sections[i].
func embedSections(ctx context.Context, sections []domain.Section, deps Deps) (*index.Flat, error) {
	texts := fn.Map(sections, domain.Section.EmbeddingText)

	embedStage := LoggedStage("embed", fn.TryStage(func(ctx context.Context, texts []string) ([]domain.Vector, error) {
		if f, ok := embed.As[embed.Fitter](deps.Provider); ok {
			if err := f.Fit(texts); err != nil {
				return nil, fmt.Errorf("ingest: fit provider: %w", err)
			}
		}
		vectors, err := deps.Provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingest: embed %d sections: %w", len(texts), err)
		}
		return vectors, nil
	}), deps.Logger, deps.Metrics)

	indexStage := LoggedStage("index", fn.TryStage(func(_ context.Context, vectors []domain.Vector) (*index.Flat, error) {
		idx, err := index.Build(vectors)
		if err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
		return idx, nil
	}), deps.Logger, deps.Metrics)

	idx, err := fn.TracedStage("ingest.embed", fn.Then(embedStage, indexStage))(ctx, texts).Unwrap()
	if err != nil {
		return nil, err
	}
	if idx.Len() != len(sections) {
		return nil, fmt.Errorf("ingest: %d vectors for %d sections: %w", idx.Len(), len(sections), domain.ErrIndexMetadataMismatch)
	}
	return idx, nil
}

// mirror replaces every configured mirror concurrently. Failures are logged.
func mirror(ctx context.Context, deps Deps, idx *index.Flat, sections []domain.Section) {
	if len(deps.Mirrors) == 0 {
		return
	}
	entries := make([]domain.IndexedSection, len(sections))
	for i, s := range sections {
		entries[i] = domain.IndexedSection{Position: i, Section: s, Vector: idx.Vector(i)}
	}
	calls := make([]func() error, len(deps.Mirrors))
	for i, m := range deps.Mirrors {
		calls[i] = func() error { return m.Replace(ctx, idx.Dim(), entries) }
	}
	for i, err := range fn.FanOut(calls...) {
		name := deps.Mirrors[i].Name()
		if err != nil {
			deps.Logger.Warn("mirror failed", "mirror", name, "error", err)
			deps.Metrics.Counter(metrics.WithLabels(MetricMirrorFailures, "mirror", name), "Mirror replace failures.").Inc()
			continue
		}
		deps.Logger.Info("mirror updated", "mirror", name, "sections", len(entries))
	}
}

// publish announces the build. Failures are logged.
func publish(ctx context.Context, deps Deps, r Report) {
	if deps.Events == nil {
		return
	}
	ev := BuiltEvent{
		TotalDocuments:     r.Stats.TotalDocuments,
		ProcessedDocuments: r.Stats.ProcessedDocuments,
		TotalSections:      r.Stats.TotalSections,
		Dimension:          r.Dimension,
		Provider:           deps.Provider.Name(),
		IndexPath:          r.IndexPath,
		MetadataPath:       r.MetadataPath,
		Timestamp:          r.Stats.Timestamp,
	}
	if err := natsutil.Publish(ctx, deps.Events, EventSubject, ev); err != nil {
		deps.Logger.Warn("build event not published", "subject", EventSubject, "error", err)
		return
	}
	deps.Logger.Info("build event published", "subject", EventSubject)
}
