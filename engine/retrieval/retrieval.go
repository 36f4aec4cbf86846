// Package retrieval answers a persona/task query against a built index. It
// embeds the query, searches the index, maps hits back to their sections and
// shapes the ranked result into the output document.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/embed"
)

// DefaultTopK is the number of sections returned when k is not positive.
const DefaultTopK = 5

// Searcher is an exact nearest-neighbour index.
type Searcher interface {
	Len() int
	Search(query domain.Vector, k int) ([]domain.Hit, error)
}

// Engine is the query-time retrieval service. Index position i and
// sections[i] describe the same section.
type Engine struct {
	provider embed.Provider
	index    Searcher
	sections []domain.Section
	logger   *slog.Logger
}

// New creates an Engine. The index and the section list must come from the
// same build.
func New(provider embed.Provider, index Searcher, sections []domain.Section, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if index.Len() != len(sections) {
		return nil, fmt.Errorf("retrieval: index has %d vectors, metadata has %d sections: %w",
			index.Len(), len(sections), domain.ErrIndexMetadataMismatch)
	}
	return &Engine{provider: provider, index: index, sections: sections, logger: logger}, nil
}

// QueryString builds the natural-language query for a persona and task.
func QueryString(persona, task string) string {
	return fmt.Sprintf("As a %s, I need to %s", persona, task)
}

// Retrieve returns up to k sections ranked by ascending distance to the
// persona/task query. Rank 1 is the closest.
func (e *Engine) Retrieve(ctx context.Context, persona, task string, k int) ([]domain.RankedSection, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	query := QueryString(persona, task)
	e.logger.Info("retrieval query start", "query_len", len(query), "top_k", k)

	vec, err := embed.EmbedOne(ctx, e.provider, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := e.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	ranked := make([]domain.RankedSection, len(hits))
	for i, h := range hits {
		if h.Position < 0 || h.Position >= len(e.sections) {
			return nil, fmt.Errorf("retrieval: hit position %d outside %d sections: %w",
				h.Position, len(e.sections), domain.ErrIndexMetadataMismatch)
		}
		ranked[i] = domain.RankedSection{
			Section:  e.sections[h.Position],
			Rank:     i + 1,
			Distance: h.Distance,
		}
	}
	e.logger.Info("retrieval search done", "results", len(ranked))
	return ranked, nil
}

// Shape projects ranked sections into the summary and detail lists of the
// output document. Both keep the ranking order.
func Shape(ranked []domain.RankedSection) ([]domain.ExtractedSection, []domain.SubsectionAnalysis) {
	extracted := make([]domain.ExtractedSection, len(ranked))
	analysis := make([]domain.SubsectionAnalysis, len(ranked))
	for i, r := range ranked {
		extracted[i] = domain.ExtractedSection{
			Document:       r.Section.Document,
			SectionTitle:   r.Section.Title,
			ImportanceRank: r.Rank,
			PageNumber:     r.Section.PageNumber,
		}
		analysis[i] = domain.SubsectionAnalysis{
			Document:    r.Section.Document,
			RefinedText: r.Section.Content,
			PageNumber:  r.Section.PageNumber,
		}
	}
	return extracted, analysis
}

// BuildOutput assembles challenge1b_output.json for a query run.
func BuildOutput(in domain.Input, ranked []domain.RankedSection, now time.Time) domain.Output {
	extracted, analysis := Shape(ranked)
	return domain.Output{
		Metadata: domain.OutputMetadata{
			InputDocuments:      in.DocumentNames(),
			Persona:             in.Persona.Role,
			JobToBeDone:         in.JobToBeDone.Task,
			ProcessingTimestamp: now.Format(time.RFC3339Nano),
		},
		ExtractedSections:  extracted,
		SubsectionAnalysis: analysis,
	}
}
