package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// ChunkIndex serves the full-text channels (lexical, title, section, short)
// from one chunks table with generated tsvector columns.
type ChunkIndex struct {
	db *sql.DB
}

func NewChunkIndex(db *sql.DB) *ChunkIndex {
	return &ChunkIndex{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

var (
	_ ports.ChannelIndex = (*ChunkIndex)(nil)
	_ ports.LexicalRoute = (*ChunkIndex)(nil)
	_ ports.TitleRoute   = (*ChunkIndex)(nil)
	_ ports.SectionRoute = (*ChunkIndex)(nil)
	_ ports.ShortRoute   = (*ChunkIndex)(nil)
)

func (r *ChunkIndex) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/mcp startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	filename TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT 'chunk',
	text TEXT NOT NULL,
	ingest_run_id TEXT NOT NULL DEFAULT '',
	chunk_variant TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	text_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(text, ''))) STORED,
	title_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(title, '') || ' ' || coalesce(filename, ''))) STORED,
	section_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(section, ''))) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunks_text_tsv ON chunks USING GIN (text_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_title_tsv ON chunks USING GIN (title_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_section_tsv ON chunks USING GIN (section_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_kind ON chunks(kind);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Search is the generic mode route; an unknown or empty channel falls back
// to the lexical query.
func (r *ChunkIndex) Search(ctx context.Context, channel domain.Channel, query string, limit int) ([]domain.RawRow, error) {
	switch channel {
	case domain.ChannelTitle:
		return r.SearchTitles(ctx, query, limit)
	case domain.ChannelSection:
		return r.SearchSections(ctx, query, limit)
	case domain.ChannelShort:
		return r.SearchShort(ctx, query, limit)
	default:
		return r.SearchLexical(ctx, query, limit)
	}
}

func (r *ChunkIndex) SearchLexical(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	const q = `
SELECT id, file_path, filename, text, ingest_run_id, chunk_variant,
	ts_rank_cd(text_tsv, websearch_to_tsquery('english', $1)) AS score
FROM chunks
WHERE text_tsv @@ websearch_to_tsquery('english', $1)
ORDER BY score DESC, id ASC
LIMIT $2
`
	return r.queryRows(ctx, "search lexical", q, query, limit)
}

func (r *ChunkIndex) SearchTitles(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	const q = `
SELECT id, file_path, filename, text, ingest_run_id, chunk_variant,
	ts_rank_cd(title_tsv, websearch_to_tsquery('english', $1)) AS score
FROM chunks
WHERE title_tsv @@ websearch_to_tsquery('english', $1)
ORDER BY score DESC, id ASC
LIMIT $2
`
	return r.queryRows(ctx, "search titles", q, query, limit)
}

// SearchSections takes the OR-joined heading token string produced by the
// query builder; the tokens are lowercase alphanumerics, valid to_tsquery
// input as-is.
func (r *ChunkIndex) SearchSections(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	const q = `
SELECT id, file_path, filename, text, ingest_run_id, chunk_variant,
	ts_rank_cd(section_tsv, to_tsquery('english', $1)) AS score
FROM chunks
WHERE section_tsv @@ to_tsquery('english', $1)
ORDER BY score DESC, id ASC
LIMIT $2
`
	return r.queryRows(ctx, "search sections", q, query, limit)
}

func (r *ChunkIndex) SearchShort(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	const q = `
SELECT id, file_path, filename, text, ingest_run_id, chunk_variant,
	ts_rank_cd(text_tsv, websearch_to_tsquery('english', $1)) AS score
FROM chunks
WHERE kind = 'short' AND text_tsv @@ websearch_to_tsquery('english', $1)
ORDER BY score DESC, id ASC
LIMIT $2
`
	return r.queryRows(ctx, "search short", q, query, limit)
}

func (r *ChunkIndex) queryRows(ctx context.Context, op, query string, arg string, limit int) ([]domain.RawRow, error) {
	rows, err := r.db.QueryContext(ctx, query, arg, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrChannelUnavailable, op, err)
	}
	defer rows.Close()

	var out []domain.RawRow
	for rows.Next() {
		var id, filePath, filename, text, ingestRunID, chunkVariant string
		var score float64
		if err := rows.Scan(&id, &filePath, &filename, &text, &ingestRunID, &chunkVariant, &score); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		out = append(out, domain.FieldsRow(map[string]any{
			"id":            id,
			"file_path":     filePath,
			"filename":      filename,
			"text":          text,
			"ingest_run_id": ingestRunID,
			"chunk_variant": chunkVariant,
			"score":         score,
		}))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}
