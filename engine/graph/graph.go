// Package graph mirrors the section catalog into Neo4j as a browsable graph:
//
//	(:Document)-[:HAS_SECTION]->(:Section)
//	(:Document)-[:IN_CATEGORY {position}]->(:Category)
//	(:Document)-[:TAGGED]->(:Tag)
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
	"github.com/WessleyAI/wessley-docsearch/pkg/fn"
	"github.com/WessleyAI/wessley-docsearch/pkg/repo"
)

// sectionBatchSize caps the rows sent per UNWIND statement.
const sectionBatchSize = 500

const (
	clearCypher = `MATCH (n) WHERE n:Document OR n:Section DETACH DELETE n`

	documentCypher = `UNWIND $docs AS d
MERGE (doc:Document {name: d.name})
SET doc.main_type = d.main_type, doc.sub_type = d.sub_type, doc.sequence = d.sequence
WITH doc, d
UNWIND range(0, size(d.categories) - 1) AS i
MERGE (c:Category {name: d.categories[i]})
MERGE (doc)-[:IN_CATEGORY {position: i}]->(c)`

	tagCypher = `UNWIND $docs AS d
MATCH (doc:Document {name: d.name})
UNWIND d.tags AS tag
MERGE (t:Tag {name: tag})
MERGE (doc)-[:TAGGED]->(t)`

	sectionCypher = `UNWIND $sections AS s
MATCH (doc:Document {name: s.document})
CREATE (x:Section {position: s.position, title: s.title, page_number: s.page_number, content: s.content})
CREATE (doc)-[:HAS_SECTION]->(x)`

	countCypher = `MATCH (x:Section) RETURN count(x) AS n`
)

// Store writes the catalog graph.
type Store struct {
	driver   neo4j.DriverWithContext
	sessions repo.Sessions
	logger   *slog.Logger
}

// New connects to Neo4j at uri with basic auth.
func New(ctx context.Context, uri, user, password, database string, logger *slog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: driver %s: %w", uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: connect %s: %w", uri, err)
	}
	s := NewWithSessions(repo.DriverSessions(driver, database), logger)
	s.driver = driver
	return s, nil
}

// NewWithSessions creates a Store over a session factory.
func NewWithSessions(sessions repo.Sessions, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{sessions: sessions, logger: logger}
}

// Name identifies the mirror in logs.
func (s *Store) Name() string { return "neo4j" }

// Close closes the driver, if one was opened.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// Replace drops every Document and Section node and writes the catalog
// again. Category and Tag nodes are shared and kept. The vector dimension is
// not stored.
func (s *Store) Replace(ctx context.Context, _ int, entries []domain.IndexedSection) error {
	stmts := []repo.Statement{{Cypher: clearCypher}}
	docs := documentRows(entries)
	stmts = append(stmts,
		repo.Statement{Cypher: documentCypher, Params: map[string]any{"docs": docs}},
		repo.Statement{Cypher: tagCypher, Params: map[string]any{"docs": docs}},
	)
	for _, chunk := range fn.Chunk(entries, sectionBatchSize) {
		stmts = append(stmts, repo.Statement{
			Cypher: sectionCypher,
			Params: map[string]any{"sections": fn.Map(chunk, sectionRow)},
		})
	}
	if err := repo.Exec(ctx, s.sessions, stmts...); err != nil {
		return fmt.Errorf("graph: replace: %w", err)
	}

	counts, err := repo.Query(ctx, s.sessions, repo.Statement{Cypher: countCypher}, func(rec *neo4j.Record) (int64, error) {
		n, _, err := neo4j.GetRecordValue[int64](rec, "n")
		return n, err
	})
	if err != nil {
		return fmt.Errorf("graph: count sections: %w", err)
	}
	if len(counts) != 1 || counts[0] != int64(len(entries)) {
		return fmt.Errorf("graph: stored %v sections, want %d", counts, len(entries))
	}
	s.logger.Info("neo4j mirror replaced", "documents", len(docs), "sections", len(entries))
	return nil
}

// documentRows returns one row per distinct document, in first-seen order.
func documentRows(entries []domain.IndexedSection) []any {
	seen := map[string]bool{}
	var rows []any
	for _, e := range entries {
		sec := e.Section
		if seen[sec.Document] {
			continue
		}
		seen[sec.Document] = true
		var seq any
		if sec.Sequence != nil {
			seq = int64(*sec.Sequence)
		}
		rows = append(rows, map[string]any{
			"name":       sec.Document,
			"main_type":  sec.MainType,
			"sub_type":   sec.SubType,
			"sequence":   seq,
			"categories": nonNil(sec.Categories),
			"tags":       nonNil(sec.Tags),
		})
	}
	return rows
}

func sectionRow(e domain.IndexedSection) any {
	return map[string]any{
		"position":    int64(e.Position),
		"document":    e.Section.Document,
		"title":       e.Section.Title,
		"page_number": int64(e.Section.PageNumber),
		"content":     e.Section.Content,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
