// Package catalog persists the section metadata that runs parallel to the
// vector index.
package catalog

import (
	"fmt"
	"time"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/engine/workspace"
)

// Catalog is the content of metadata.json. Texts[i] describes index
// position i.
type Catalog struct {
	Texts []domain.Section `json:"texts"`
	Stats domain.Stats     `json:"stats"`
}

// New builds a catalog for sections extracted from processed of total
// documents, stamped with now.
func New(sections []domain.Section, total, processed int, now time.Time) Catalog {
	if sections == nil {
		sections = []domain.Section{}
	}
	return Catalog{
		Texts: sections,
		Stats: domain.Stats{
			TotalDocuments:     total,
			ProcessedDocuments: processed,
			TotalSections:      len(sections),
			Timestamp:          now.Format(time.RFC3339Nano),
		},
	}
}

// Save writes the catalog as metadata.json.
func (c Catalog) Save(path string) error {
	if err := workspace.WriteJSON(path, c); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}
	return nil
}

// Load reads metadata.json.
func Load(path string) (Catalog, error) {
	var c Catalog
	if err := workspace.ReadJSON(path, &c); err != nil {
		return Catalog{}, fmt.Errorf("catalog: load: %w", err)
	}
	if c.Texts == nil {
		return Catalog{}, fmt.Errorf("catalog: load %s: no texts: %w", path, domain.ErrMalformedInput)
	}
	return c, nil
}
