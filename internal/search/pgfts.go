package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches contribution_tiles with PostgreSQL full-text search. It is
// the fallback when Meilisearch is unavailable.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks tiles with ts_rank and builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit, offset := normalizePage(q)
	where, args := pgWhere(q)

	var total int
	if err := p.db.QueryRowContext(ctx,
		"SELECT count(*) FROM contribution_tiles t WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT t.report_id, t.ordinal, t.document_id, t.author_id, t.author_name, t.started_at,
			ts_headline('english', t.text, plainto_tsquery('english', $1),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet
		FROM contribution_tiles t
		WHERE %s
		ORDER BY ts_rank(t.fts, plainto_tsquery('english', $1)) DESC, t.started_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var started time.Time
		if err := rows.Scan(&r.ReportID, &r.Ordinal, &r.DocumentID, &r.AuthorID, &r.Author, &started, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.ID = TileID(r.ReportID, r.Ordinal)
		r.StartedAt = started.UTC()
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// pgWhere builds the shared predicate; $1 is always the query text.
func pgWhere(q Query) (string, []any) {
	clauses := []string{"t.fts @@ plainto_tsquery('english', $1)"}
	args := []any{q.Text}
	if q.DocumentID != "" {
		args = append(args, q.DocumentID)
		clauses = append(clauses, fmt.Sprintf("t.document_id = $%d", len(args)))
	}
	if q.AuthorID != "" {
		args = append(args, q.AuthorID)
		clauses = append(clauses, fmt.Sprintf("t.author_id = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// LoadAllRecords returns every stored tile for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TileRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT report_id, ordinal, document_id, author_id, author_name, text, started_at, total_chars, external_chars
		FROM contribution_tiles
		ORDER BY report_id, ordinal
	`)
	if err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}
	defer rows.Close()

	records := make([]TileRecord, 0)
	for rows.Next() {
		var r TileRecord
		var started time.Time
		if err := rows.Scan(&r.ReportID, &r.Ordinal, &r.DocumentID, &r.AuthorID, &r.Author, &r.Text,
			&started, &r.TotalChars, &r.ExternalChars); err != nil {
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		r.ID = TileID(r.ReportID, r.Ordinal)
		r.StartedAt = started.UnixMilli()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tiles: %w", err)
	}
	return records, nil
}
