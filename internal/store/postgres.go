package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveReport writes the report with its tiles and totals in one transaction.
func (s *PostgresStore) SaveReport(ctx context.Context, report Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	options := report.Options
	if len(options) == 0 {
		options = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save report: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO replay_reports (id, document_id, fingerprint, options, result, changelog_key, record_count, deletion_count, final_length, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, report.ID, report.DocumentID, report.Fingerprint, string(options), string(report.Result),
		report.ChangelogKey, report.Records, report.DeletionCount, report.FinalLength, report.CreatedAt); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, tile := range report.Tiles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contribution_tiles (report_id, ordinal, document_id, author_id, author_name, started_at, ended_at, text, total_chars, total_words, internal_chars, external_chars)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, report.ID, tile.Ordinal, report.DocumentID, tile.AuthorID, tile.Author, tile.StartedAt, tile.EndedAt,
			tile.Text, tile.TotalChars, tile.TotalWords, tile.InternalChars, tile.ExternalChars); err != nil {
			return fmt.Errorf("insert tile %d: %w", tile.Ordinal, err)
		}
	}

	for _, total := range report.Totals {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO author_totals (report_id, author_id, author_name, tiles, total_chars, total_words, internal_chars, internal_words, external_chars, external_words)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, report.ID, total.AuthorID, total.Author, total.Tiles, total.TotalChars, total.TotalWords,
			total.InternalChars, total.InternalWords, total.ExternalChars, total.ExternalWords); err != nil {
			return fmt.Errorf("insert totals for %s: %w", total.AuthorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (Report, error) {
	var report Report
	var options, result string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, fingerprint, options::text, result::text, changelog_key, record_count, deletion_count, final_length, created_at
		FROM replay_reports
		WHERE id = $1
	`, reportID).Scan(&report.ID, &report.DocumentID, &report.Fingerprint, &options, &result,
		&report.ChangelogKey, &report.Records, &report.DeletionCount, &report.FinalLength, &report.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("get report: %w", err)
	}
	report.Options = []byte(options)
	report.Result = []byte(result)

	if report.Tiles, err = s.listTiles(ctx, reportID); err != nil {
		return Report{}, err
	}
	if report.Totals, err = s.listTotals(ctx, reportID); err != nil {
		return Report{}, err
	}
	return report, nil
}

// FindByFingerprint returns the newest report for a document with the given
// changelog fingerprint.
func (s *PostgresStore) FindByFingerprint(ctx context.Context, documentID, fingerprint string) (Report, error) {
	var reportID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM replay_reports
		WHERE document_id = $1 AND fingerprint = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, documentID, fingerprint).Scan(&reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("find report by fingerprint: %w", err)
	}
	return s.GetReport(ctx, reportID)
}

func (s *PostgresStore) ListReports(ctx context.Context, documentID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.document_id, r.fingerprint, r.record_count, r.deletion_count, r.final_length, r.created_at,
			(SELECT count(*) FROM contribution_tiles t WHERE t.report_id = r.id),
			(SELECT count(*) FROM author_totals a WHERE a.report_id = r.id)
		FROM replay_reports r
		WHERE r.document_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	summaries := make([]ReportSummary, 0)
	for rows.Next() {
		var summary ReportSummary
		if err := rows.Scan(&summary.ID, &summary.DocumentID, &summary.Fingerprint, &summary.Records,
			&summary.DeletionCount, &summary.FinalLength, &summary.CreatedAt, &summary.TileCount, &summary.AuthorCount); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report summaries: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) listTiles(ctx context.Context, reportID string) ([]TileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, author_id, author_name, started_at, ended_at, text, total_chars, total_words, internal_chars, external_chars
		FROM contribution_tiles
		WHERE report_id = $1
		ORDER BY ordinal
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	defer rows.Close()

	tiles := make([]TileRecord, 0)
	for rows.Next() {
		var tile TileRecord
		if err := rows.Scan(&tile.Ordinal, &tile.AuthorID, &tile.Author, &tile.StartedAt, &tile.EndedAt, &tile.Text,
			&tile.TotalChars, &tile.TotalWords, &tile.InternalChars, &tile.ExternalChars); err != nil {
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		tiles = append(tiles, tile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tiles: %w", err)
	}
	return tiles, nil
}

func (s *PostgresStore) listTotals(ctx context.Context, reportID string) ([]AuthorTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT author_id, author_name, tiles, total_chars, total_words, internal_chars, internal_words, external_chars, external_words
		FROM author_totals
		WHERE report_id = $1
		ORDER BY total_chars DESC, author_id
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list totals: %w", err)
	}
	defer rows.Close()

	totals := make([]AuthorTotal, 0)
	for rows.Next() {
		var total AuthorTotal
		if err := rows.Scan(&total.AuthorID, &total.Author, &total.Tiles, &total.TotalChars, &total.TotalWords,
			&total.InternalChars, &total.InternalWords, &total.ExternalChars, &total.ExternalWords); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate totals: %w", err)
	}
	return totals, nil
}
