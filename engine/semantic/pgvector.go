package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/WessleyAI/wessley-docsearch/engine/domain"
)

// DefaultTable is the pgvector table used when none is configured.
const DefaultTable = "docsearch_sections"

// pgvector limits: the vector type holds up to MaxVectorDim dimensions and an
// hnsw index covers up to MaxHNSWDim. Larger tables are left unindexed.
const (
	MaxVectorDim = 16000
	MaxHNSWDim   = 2000
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Postgres mirrors sections into a pgvector table.
type Postgres struct {
	pool   *pgxpool.Pool
	db     pgExecutor
	table  string
	logger *slog.Logger
}

// NewPostgres connects to connString. An empty table name means
// DefaultTable.
func NewPostgres(ctx context.Context, connString, table string, logger *slog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("semantic: connect postgres: %w", err)
	}
	p, err := NewPostgresWithDB(pool, table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// NewPostgresWithDB creates a mirror over an existing connection.
func NewPostgresWithDB(db pgExecutor, table string, logger *slog.Logger) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, domain.NewValidationError("pgvector.table", table, domain.ErrMalformedInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, table: table, logger: logger}, nil
}

// Name identifies the mirror in logs.
func (p *Postgres) Name() string { return "pgvector/" + p.table }

// Close releases the pool, if one was opened.
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// Replace recreates the table for dim-dimensional vectors and inserts every
// entry in one batch, which runs as a single implicit transaction.
func (p *Postgres) Replace(ctx context.Context, dim int, entries []domain.IndexedSection) error {
	if dim > MaxVectorDim {
		return fmt.Errorf("semantic: pgvector stores at most %d dimensions, got %d: %w", MaxVectorDim, dim, domain.ErrDimensionMismatch)
	}
	if _, err := p.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("semantic: create vector extension: %w", err)
	}

	table := pgx.Identifier{p.table}.Sanitize()
	index := pgx.Identifier{p.table + "_embedding_idx"}.Sanitize()

	b := &pgx.Batch{}
	b.Queue("DROP TABLE IF EXISTS " + table)
	b.Queue(fmt.Sprintf(`CREATE TABLE %s (
		position INTEGER PRIMARY KEY,
		document TEXT NOT NULL,
		section_title TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB NOT NULL,
		embedding vector(%d) NOT NULL
	)`, table, dim))
	insert := fmt.Sprintf(`INSERT INTO %s (position, document, section_title, page_number, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, table)
	for _, e := range entries {
		s := e.Section
		b.Queue(insert, e.Position, s.Document, s.Title, s.PageNumber, s.Content, metadataOf(s), pgvector.NewVector(e.Vector))
	}
	if dim <= MaxHNSWDim {
		b.Queue(fmt.Sprintf("CREATE INDEX %s ON %s USING hnsw (embedding vector_l2_ops)", index, table))
	} else {
		p.logger.Info("pgvector: dimension too large for hnsw, queries will scan", "table", p.table, "dim", dim, "max", MaxHNSWDim)
	}

	results := p.db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("semantic: replace %s (statement %d): %w", p.table, i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("semantic: replace %s: %w", p.table, err)
	}
	p.logger.Info("pgvector mirror replaced", "table", p.table, "rows", len(entries), "dim", dim)
	return nil
}

func metadataOf(s domain.Section) map[string]any {
	return map[string]any{
		"main_type":  s.MainType,
		"sub_type":   s.SubType,
		"sequence":   s.Sequence,
		"categories": s.Categories,
		"tags":       s.Tags,
	}
}
