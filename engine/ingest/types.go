package ingest

import (
	"context"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// DocumentJob is one entry of input.json scheduled for extraction.
type DocumentJob struct {
	Position int
	Name     string
	Path     string
}

// extracted is a document whose pages have been read.
type extracted struct {
	DocumentJob
	Pages []domain.Page
}

// DocumentResult holds the sections of one processed document, in reading
// order, with document metadata merged in.
type DocumentResult struct {
	Name     string
	Sections []domain.Section
}

// Mirror receives a copy of every successful build. The local index stays
// authoritative; mirror failures never fail a build.
type Mirror interface {
	Name() string
	Replace(ctx context.Context, dim int, entries []domain.IndexedSection) error
}

// BuiltEvent is published on EventSubject after a build.
type BuiltEvent struct {
	TotalDocuments     int    `json:"total_documents"`
	ProcessedDocuments int    `json:"processed_documents"`
	TotalSections      int    `json:"total_sections"`
	Dimension          int    `json:"dimension"`
	Provider           string `json:"provider"`
	IndexPath          string `json:"index_path"`
	MetadataPath       string `json:"metadata_path"`
	Timestamp          string `json:"timestamp"`
}

// Report summarises a build for the caller.
type Report struct {
	Stats        domain.Stats
	Dimension    int
	IndexPath    string
	MetadataPath string
}
