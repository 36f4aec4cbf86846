package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-docsearch/engine/catalog"
	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/embed"
	"github.com/WessleyAI/wessley-docsearch/engine/index"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
	"github.com/WessleyAI/wessley-docsearch/pkg/metrics"
	"github.com/WessleyAI/wessley-docsearch/pkg/natsutil"
	"github.com/WessleyAI/wessley-docsearch/pkg/pdf"
)

// --- fixtures ---

func span(text string, size float64, page int) domain.Block {
	return domain.Block{Lines: []domain.Line{{Spans: []domain.TextSpan{{Text: text, FontSize: size, PageNumber: page}}}}}
}

// twoSectionPDF returns a document with two headed sections on page 1.
func twoSectionPDF(string) ([]domain.Page, error) {
	return []domain.Page{{
		Number: 1,
		Blocks: []domain.Block{
			span("Dinner Menu", 20, 1),
			span("plan three courses around seasonal produce.", 10, 1),
			span("Wine Pairing", 20, 1),
			span("choose a wine for every course.", 10, 1),
		},
	}}, nil
}

func setupWorkspace(t *testing.T, input string, pdfs ...string) workspace.Paths {
	t.Helper()
	paths := workspace.New(t.TempDir())
	require.NoError(t, os.MkdirAll(paths.PDFDir, 0o755))
	require.NoError(t, os.WriteFile(paths.Input, []byte(input), 0o644))
	for _, name := range pdfs {
		require.NoError(t, os.WriteFile(paths.PDF(name), []byte("%PDF-1.4"), 0o644))
	}
	return paths
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	inner embed.Provider
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.inner.Embed(ctx, texts)
}

func (p *countingProvider) Unwrap() embed.Provider { return p.inner }

type fakeMirror struct {
	name    string
	err     error
	dim     int
	entries []domain.IndexedSection
}

func (m *fakeMirror) Name() string { return m.name }

func (m *fakeMirror) Replace(_ context.Context, dim int, entries []domain.IndexedSection) error {
	m.dim, m.entries = dim, entries
	return m.err
}

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	c.msgs = append(c.msgs, m)
	return c.err
}

func (c *fakeConn) FlushTimeout(time.Duration) error { return nil }

func captureLogs() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

const threeDocs = `{
	"documents": [{"filename": "Cookbook - Dinner_01.pdf"}, {"file": "missing.pdf"}, {"name": "Guide - Wine.pdf"}],
	"persona": {"role": "Chef"},
	"job_to_be_done": {"task": "plan a dinner menu"}
}`

// --- tests ---

func TestRun_MissingPDFIsSkipped(t *testing.T) {
	paths := setupWorkspace(t, threeDocs, "Cookbook - Dinner_01.pdf", "Guide - Wine.pdf")
	log, logs := captureLogs()
	reg := metrics.New()
	provider := embed.Batched(embed.NewTFIDF(), 0)

	var progress []int
	report, err := Run(context.Background(), paths, Deps{
		Source:   pdf.SourceFunc(twoSectionPDF),
		Provider: provider,
		Logger:   log,
		Metrics:  reg,
		Workers:  1,
		Progress: func(done, total int) { progress = append(progress, done*10+total) },
		Now:      func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Stats.TotalDocuments)
	assert.Equal(t, 2, report.Stats.ProcessedDocuments)
	assert.Equal(t, 4, report.Stats.TotalSections)
	assert.Equal(t, "2024-03-01T09:00:00Z", report.Stats.Timestamp)
	assert.Equal(t, []int{13, 23, 33}, progress)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "document=missing.pdf")
	assert.Contains(t, logs.String(), "reason=missing_file")
	assert.Contains(t, reg.Render(), `docsearch_documents_skipped_total{reason="missing_file"} 1`)

	cat, err := catalog.Load(paths.Metadata)
	require.NoError(t, err)
	idx, err := index.Load(paths.Index)
	require.NoError(t, err)
	assert.Equal(t, len(cat.Texts), idx.Len())
	assert.Equal(t, report.Dimension, idx.Dim())

	first := cat.Texts[0]
	assert.Equal(t, "Dinner Menu", first.Title)
	assert.Equal(t, "Cookbook - Dinner_01.pdf", first.Document)
	assert.Equal(t, "Dinner", first.SubType)
	require.NotNil(t, first.Sequence)
	assert.Equal(t, 1, *first.Sequence)
	assert.Equal(t, "Guide - Wine.pdf", cat.Texts[2].Document)
	assert.Equal(t, []string{"documentation"}, cat.Texts[2].Tags)

	_, err = os.Stat(paths.Vocab)
	assert.NoError(t, err, "tfidf vocabulary must be saved next to the index")
}

func TestRun_EmptyDocumentsFailsBeforeEmbedding(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [], "persona": {"role": "Chef"}, "job_to_be_done": {"task": "cook"}}`)
	provider := &countingProvider{inner: embed.NewTFIDF()}

	_, err := Run(context.Background(), paths, Deps{Source: pdf.SourceFunc(twoSectionPDF), Provider: provider})
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
	assert.Zero(t, provider.calls)
	_, statErr := os.Stat(paths.Index)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_AllDocumentsSkipped(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "gone.pdf"}, {"title": "no name"}]}`)
	provider := &countingProvider{inner: embed.NewTFIDF()}
	log, logs := captureLogs()

	_, err := Run(context.Background(), paths, Deps{Source: pdf.SourceFunc(twoSectionPDF), Provider: provider, Logger: log})
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
	assert.Zero(t, provider.calls)
	assert.Contains(t, logs.String(), "has no filename")
}

func TestRun_NoSections(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "blank.pdf"}]}`, "blank.pdf")
	blank := pdf.SourceFunc(func(string) ([]domain.Page, error) { return []domain.Page{{Number: 1}}, nil })

	_, err := Run(context.Background(), paths, Deps{Source: blank, Provider: embed.NewTFIDF()})
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
}

func TestRun_FailedCommitKeepsPreviousIndex(t *testing.T) {
	paths := setupWorkspace(t, threeDocs, "Cookbook - Dinner_01.pdf", "Guide - Wine.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Index), 0o755))
	require.NoError(t, os.WriteFile(paths.Index, []byte("previous build"), 0o644))
	// A directory at metadata.json makes the catalog commit fail.
	require.NoError(t, os.MkdirAll(filepath.Join(paths.Metadata, "blocker"), 0o755))

	_, err := Run(context.Background(), paths, Deps{Source: pdf.SourceFunc(twoSectionPDF), Provider: embed.NewTFIDF()})
	require.Error(t, err)

	prev, err := os.ReadFile(paths.Index)
	require.NoError(t, err)
	assert.Equal(t, "previous build", string(prev))
	_, err = os.Stat(paths.Vocab)
	assert.True(t, os.IsNotExist(err), "vocabulary must not be committed")

	for _, dir := range []string{paths.Base, filepath.Dir(paths.Index)} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".staging", "staged file left in %s", dir)
		}
	}
}

func TestRun_ExtractFailureIsSkipped(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "bad.pdf"}, {"filename": "good.pdf"}]}`, "bad.pdf", "good.pdf")
	src := pdf.SourceFunc(func(path string) ([]domain.Page, error) {
		if strings.HasSuffix(path, "bad.pdf") {
			return nil, errors.New("xref table broken")
		}
		return twoSectionPDF(path)
	})
	reg := metrics.New()

	report, err := Run(context.Background(), paths, Deps{Source: src, Provider: embed.NewTFIDF(), Metrics: reg})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.ProcessedDocuments)
	assert.Contains(t, reg.Render(), `docsearch_documents_skipped_total{reason="extract"} 1`)
}

func TestRun_TraversalNameIsSkipped(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "../secret.pdf"}, {"filename": "ok.pdf"}]}`, "ok.pdf")
	report, err := Run(context.Background(), paths, Deps{Source: pdf.SourceFunc(twoSectionPDF), Provider: embed.NewTFIDF()})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.ProcessedDocuments)
	assert.Equal(t, 2, report.Stats.TotalDocuments)
}

func TestRun_MissingInputs(t *testing.T) {
	paths := workspace.New(t.TempDir())
	_, err := Run(context.Background(), paths, Deps{Provider: embed.NewTFIDF()})
	assert.ErrorIs(t, err, domain.ErrMissingFile)

	require.NoError(t, os.MkdirAll(filepath.Dir(paths.Input), 0o755))
	require.NoError(t, os.WriteFile(paths.Input, []byte(`{"documents": [{"filename": "a.pdf"}]}`), 0o644))
	_, err = Run(context.Background(), paths, Deps{Provider: embed.NewTFIDF()})
	assert.ErrorIs(t, err, domain.ErrMissingFile)
	assert.Contains(t, err.Error(), "pdf directory")
}

func TestRun_MirrorsAndEvents(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "a.pdf"}]}`, "a.pdf")
	ok := &fakeMirror{name: "ok"}
	broken := &fakeMirror{name: "broken", err: errors.New("connection refused")}
	conn := &fakeConn{}
	log, logs := captureLogs()
	reg := metrics.New()

	report, err := Run(context.Background(), paths, Deps{
		Source:   pdf.SourceFunc(twoSectionPDF),
		Provider: embed.NewTFIDF(),
		Mirrors:  []Mirror{ok, broken},
		Events:   conn,
		Logger:   log,
		Metrics:  reg,
	})
	require.NoError(t, err)

	require.Len(t, ok.entries, 2)
	assert.Equal(t, report.Dimension, ok.dim)
	assert.Equal(t, 1, ok.entries[1].Position)
	assert.Equal(t, "Wine Pairing", ok.entries[1].Section.Title)
	assert.Len(t, ok.entries[1].Vector, report.Dimension)

	assert.Contains(t, logs.String(), "mirror failed")
	assert.Contains(t, reg.Render(), `docsearch_mirror_failures_total{mirror="broken"} 1`)

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, EventSubject, conn.msgs[0].Subject)
	_, ev, err := natsutil.Decode[BuiltEvent](conn.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, ev.TotalSections)
	assert.Equal(t, "tfidf", ev.Provider)
}

func TestRun_EventFailureIsNotFatal(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "a.pdf"}]}`, "a.pdf")
	_, err := Run(context.Background(), paths, Deps{
		Source:   pdf.SourceFunc(twoSectionPDF),
		Provider: embed.NewTFIDF(),
		Events:   &fakeConn{err: errors.New("no responders")},
	})
	assert.NoError(t, err)
}

func TestRun_NoProvider(t *testing.T) {
	paths := setupWorkspace(t, `{"documents": [{"filename": "a.pdf"}]}`, "a.pdf")
	_, err := Run(context.Background(), paths, Deps{Source: pdf.SourceFunc(twoSectionPDF)})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestRun_ConcurrentWorkersKeepInputOrder(t *testing.T) {
	input := `{"documents": [{"filename": "a.pdf"}, {"filename": "b.pdf"}, {"filename": "c.pdf"}, {"filename": "d.pdf"}]}`
	paths := setupWorkspace(t, input, "a.pdf", "b.pdf", "c.pdf", "d.pdf")
	src := pdf.SourceFunc(func(path string) ([]domain.Page, error) {
		name := filepath.Base(path)
		if name == "a.pdf" {
			time.Sleep(20 * time.Millisecond)
		}
		return []domain.Page{{Number: 1, Blocks: []domain.Block{span("Heading "+name, 20, 1), span("body of "+name, 10, 1)}}}, nil
	})

	_, err := Run(context.Background(), paths, Deps{Source: src, Provider: embed.NewTFIDF(), Workers: 4})
	require.NoError(t, err)

	cat, err := catalog.Load(paths.Metadata)
	require.NoError(t, err)
	var docs []string
	for _, s := range cat.Texts {
		docs = append(docs, s.Document)
	}
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}, docs)
}
