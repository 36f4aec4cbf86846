// Package domain defines core domain types, errors, and validation for the
// docsearch engine. It is shared by the build and query pipelines.
package domain

// TextSpan is a run of text with a single font size, as produced by the PDF
// span source.
type TextSpan struct {
	Text       string  `json:"text"`
	FontSize   float64 `json:"font_size"`
	PageNumber int     `json:"page_number"`
}

// Line is an ordered sequence of spans on one baseline.
type Line struct {
	Spans []TextSpan `json:"spans"`
}

// Block groups consecutive lines. A block without lines is a non-text block
// (an image or a drawing) and carries no text.
type Block struct {
	Lines []Line `json:"lines"`
}

// Page is one rendered page of a document.
type Page struct {
	Number int     `json:"number"`
	Blocks []Block `json:"blocks"`
}

// Vector is a fixed-dimension embedding.
type Vector = []float32

// Section is a contiguous run of document text under one heading, enriched
// with the metadata of the document it came from.
type Section struct {
	Title      string   `json:"section_title"`
	Content    string   `json:"content"`
	PageNumber int      `json:"page_number"`
	Document   string   `json:"document"`
	MainType   string   `json:"main_type"`
	SubType    string   `json:"sub_type"`
	Sequence   *int     `json:"sequence"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// EmbeddingText returns the text that represents the section in the index.
// Heading-only sections fall back to their title.
func (s Section) EmbeddingText() string {
	if s.Content != "" {
		return s.Content
	}
	return s.Title
}

// DocumentMetadata is derived from a document filename.
type DocumentMetadata struct {
	DocumentName string   `json:"document_name"`
	MainType     string   `json:"main_type"`
	SubType      string   `json:"sub_type"`
	Sequence     *int     `json:"sequence"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
}

// Hit is one nearest-neighbour match: a position in the index and its
// Euclidean distance to the query.
type Hit struct {
	Position int
	Distance float64
}

// RankedSection is a retrieved section with its 1-based rank.
type RankedSection struct {
	Section  Section
	Rank     int
	Distance float64
}

// Stats summarises one index build.
type Stats struct {
	TotalDocuments     int    `json:"total_documents"`
	ProcessedDocuments int    `json:"processed_documents"`
	TotalSections      int    `json:"total_sections"`
	Timestamp          string `json:"timestamp"`
}

// IndexedSection pairs a section with its index position and vector. Mirrors
// of the local index receive these.
type IndexedSection struct {
	Position int
	Section  Section
	Vector   Vector
}
