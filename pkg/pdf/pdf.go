// Package pdf turns PDF pages into positioned text spans grouped into lines
// and blocks, the shape the layout segmenter consumes.
package pdf

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// Source yields the pages of a document.
type Source interface {
	Pages(path string) ([]domain.Page, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(path string) ([]domain.Page, error)

// Pages calls f(path).
func (f SourceFunc) Pages(path string) ([]domain.Page, error) { return f(path) }

// Glyph is one positioned text run as emitted by the content stream.
type Glyph struct {
	Text     string
	FontSize float64
	X, Y, W  float64
}

// Layout thresholds, as multiples of the font size.
const (
	lineTolerance = 0.5
	wordGap       = 0.15
	blockGap      = 1.6
	sizeChange    = 0.05
)

// Reader reads PDFs from disk.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a Reader.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// Pages opens path and extracts every page. A page whose content stream
// cannot be decoded fails the document.
func (r *Reader) Pages(path string) (pages []domain.Page, err error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %w", path, err)
	}
	defer f.Close()

	// The decoder panics on some malformed streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("pdf: decode %s: %v", path, rec)
		}
	}()

	n := doc.NumPage()
	pages = make([]domain.Page, 0, n)
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}
		texts := p.Content().Text
		glyphs := make([]Glyph, 0, len(texts))
		for _, t := range texts {
			glyphs = append(glyphs, Glyph{Text: t.S, FontSize: t.FontSize, X: t.X, Y: t.Y, W: t.W})
		}
		pages = append(pages, Assemble(i, glyphs))
	}
	r.logger.Debug("pdf pages read", "path", path, "pages", len(pages))
	return pages, nil
}

// Assemble groups glyphs in content-stream order into spans, lines and
// blocks. A new line starts when the baseline moves; a new block starts on a
// large vertical gap or a font size change between lines.
func Assemble(pageNumber int, glyphs []Glyph) domain.Page {
	page := domain.Page{Number: pageNumber}

	var (
		block    domain.Block
		line     domain.Line
		span     strings.Builder
		spanSize float64
		prev     *Glyph
		lineY    float64
		lineSize float64
	)

	flushSpan := func() {
		if span.Len() > 0 {
			line.Spans = append(line.Spans, domain.TextSpan{
				Text: span.String(), FontSize: spanSize, PageNumber: pageNumber,
			})
		}
		span.Reset()
	}
	flushLine := func() {
		flushSpan()
		if len(line.Spans) > 0 {
			block.Lines = append(block.Lines, line)
		}
		line = domain.Line{}
	}
	flushBlock := func() {
		flushLine()
		if len(block.Lines) > 0 {
			page.Blocks = append(page.Blocks, block)
		}
		block = domain.Block{}
	}

	for i := range glyphs {
		g := glyphs[i]
		if g.Text == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 1
		}

		switch {
		case prev == nil:
			lineY, lineSize = g.Y, size
		case math.Abs(g.Y-prev.Y) > lineTolerance*size:
			gap := math.Abs(lineY - g.Y)
			if gap > blockGap*math.Max(lineSize, size) || relChange(lineSize, size) > sizeChange {
				flushBlock()
			} else {
				flushLine()
			}
			lineY, lineSize = g.Y, size
		default:
			if relChange(spanSize, g.FontSize) > sizeChange {
				flushSpan()
			} else if g.X-(prev.X+prev.W) > wordGap*size && !endsWithSpace(&span) && !strings.HasPrefix(g.Text, " ") {
				span.WriteByte(' ')
			}
		}

		if span.Len() == 0 {
			spanSize = g.FontSize
		}
		span.WriteString(g.Text)
		prev = &glyphs[i]
	}
	flushBlock()
	return page
}

func relChange(a, b float64) float64 {
	if a == b {
		return 0
	}
	m := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) / m
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s != "" && s[len(s)-1] == ' '
}
