package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is a local SQLite report store used by the CLI. It keeps the same
// report shape as PostgresStore.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens or creates the ledger database at path in WAL mode.
func OpenLedger(path string) (*Ledger, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS reports (
		id             TEXT PRIMARY KEY,
		document_id    TEXT NOT NULL,
		fingerprint    TEXT NOT NULL,
		options        TEXT NOT NULL DEFAULT '{}',
		result         TEXT NOT NULL,
		changelog_key  TEXT NOT NULL DEFAULT '',
		record_count   INTEGER NOT NULL DEFAULT 0,
		deletion_count INTEGER NOT NULL DEFAULT 0,
		final_length   INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_document ON reports(document_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_fingerprint ON reports(document_id, fingerprint);

	CREATE TABLE IF NOT EXISTS tiles (
		report_id      TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
		ordinal        INTEGER NOT NULL,
		author_id      TEXT NOT NULL,
		author_name    TEXT NOT NULL,
		started_at     TEXT NOT NULL,
		ended_at       TEXT NOT NULL,
		text           TEXT NOT NULL,
		total_chars    INTEGER NOT NULL DEFAULT 0,
		total_words    INTEGER NOT NULL DEFAULT 0,
		internal_chars INTEGER NOT NULL DEFAULT 0,
		external_chars INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (report_id, ordinal)
	);

	CREATE TABLE IF NOT EXISTS totals (
		report_id      TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
		author_id      TEXT NOT NULL,
		author_name    TEXT NOT NULL,
		tiles          INTEGER NOT NULL DEFAULT 0,
		total_chars    INTEGER NOT NULL DEFAULT 0,
		total_words    INTEGER NOT NULL DEFAULT 0,
		internal_chars INTEGER NOT NULL DEFAULT 0,
		internal_words INTEGER NOT NULL DEFAULT 0,
		external_chars INTEGER NOT NULL DEFAULT 0,
		external_words INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (report_id, author_id)
	);
	`)
	return err
}

func (l *Ledger) SaveReport(ctx context.Context, report Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	options := string(report.Options)
	if options == "" {
		options = "{}"
	}
	return withRetry(ctx, ledgerRetry, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save report: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reports (id, document_id, fingerprint, options, result, changelog_key, record_count, deletion_count, final_length, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, report.DocumentID, report.Fingerprint, options, string(report.Result), report.ChangelogKey,
			report.Records, report.DeletionCount, report.FinalLength, formatTime(report.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		for _, tile := range report.Tiles {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tiles (report_id, ordinal, author_id, author_name, started_at, ended_at, text, total_chars, total_words, internal_chars, external_chars)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.ID, tile.Ordinal, tile.AuthorID, tile.Author, formatTime(tile.StartedAt), formatTime(tile.EndedAt),
				tile.Text, tile.TotalChars, tile.TotalWords, tile.InternalChars, tile.ExternalChars,
			); err != nil {
				return fmt.Errorf("insert tile %d: %w", tile.Ordinal, err)
			}
		}
		for _, total := range report.Totals {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO totals (report_id, author_id, author_name, tiles, total_chars, total_words, internal_chars, internal_words, external_chars, external_words)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.ID, total.AuthorID, total.Author, total.Tiles, total.TotalChars, total.TotalWords,
				total.InternalChars, total.InternalWords, total.ExternalChars, total.ExternalWords,
			); err != nil {
				return fmt.Errorf("insert totals for %s: %w", total.AuthorID, err)
			}
		}
		return tx.Commit()
	})
}

func (l *Ledger) GetReport(ctx context.Context, reportID string) (Report, error) {
	var report Report
	var options, result, created string
	err := l.db.QueryRowContext(ctx,
		`SELECT id, document_id, fingerprint, options, result, changelog_key, record_count, deletion_count, final_length, created_at
		 FROM reports WHERE id = ?`, reportID,
	).Scan(&report.ID, &report.DocumentID, &report.Fingerprint, &options, &result, &report.ChangelogKey,
		&report.Records, &report.DeletionCount, &report.FinalLength, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("get report: %w", err)
	}
	report.Options = []byte(options)
	report.Result = []byte(result)
	if report.CreatedAt, err = parseTime(created); err != nil {
		return Report{}, fmt.Errorf("parse created_at for report %s: %w", reportID, err)
	}

	if report.Tiles, err = l.tiles(ctx, reportID); err != nil {
		return Report{}, err
	}
	if report.Totals, err = l.totals(ctx, reportID); err != nil {
		return Report{}, err
	}
	return report, nil
}

func (l *Ledger) FindByFingerprint(ctx context.Context, documentID, fingerprint string) (Report, error) {
	var reportID string
	err := l.db.QueryRowContext(ctx,
		`SELECT id FROM reports WHERE document_id = ? AND fingerprint = ? ORDER BY created_at DESC LIMIT 1`,
		documentID, fingerprint,
	).Scan(&reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("find report by fingerprint: %w", err)
	}
	return l.GetReport(ctx, reportID)
}

// ListReports returns summaries newest first. An empty documentID lists all
// documents.
func (l *Ledger) ListReports(ctx context.Context, documentID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT r.id, r.document_id, r.fingerprint, r.record_count, r.deletion_count, r.final_length, r.created_at,
		        (SELECT COUNT(*) FROM tiles t WHERE t.report_id = r.id),
		        (SELECT COUNT(*) FROM totals a WHERE a.report_id = r.id)
		 FROM reports r
		 WHERE ? = '' OR r.document_id = ?
		 ORDER BY r.created_at DESC, r.id
		 LIMIT ?`,
		documentID, documentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	summaries := make([]ReportSummary, 0)
	for rows.Next() {
		var s ReportSummary
		var created string
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Fingerprint, &s.Records, &s.DeletionCount, &s.FinalLength,
			&created, &s.TileCount, &s.AuthorCount); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at for report %s: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (l *Ledger) tiles(ctx context.Context, reportID string) ([]TileRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ordinal, author_id, author_name, started_at, ended_at, text, total_chars, total_words, internal_chars, external_chars
		 FROM tiles WHERE report_id = ? ORDER BY ordinal`, reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	defer rows.Close()

	tiles := make([]TileRecord, 0)
	for rows.Next() {
		var tile TileRecord
		var started, ended string
		if err := rows.Scan(&tile.Ordinal, &tile.AuthorID, &tile.Author, &started, &ended, &tile.Text,
			&tile.TotalChars, &tile.TotalWords, &tile.InternalChars, &tile.ExternalChars); err != nil {
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		if tile.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at for tile %d: %w", tile.Ordinal, err)
		}
		if tile.EndedAt, err = parseTime(ended); err != nil {
			return nil, fmt.Errorf("parse ended_at for tile %d: %w", tile.Ordinal, err)
		}
		tiles = append(tiles, tile)
	}
	return tiles, rows.Err()
}

func (l *Ledger) totals(ctx context.Context, reportID string) ([]AuthorTotal, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT author_id, author_name, tiles, total_chars, total_words, internal_chars, internal_words, external_chars, external_words
		 FROM totals WHERE report_id = ? ORDER BY total_chars DESC, author_id`, reportID,
	)
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
	return totals, rows.Err()
}

// ledgerTime is fixed width so stored timestamps sort lexically.
const ledgerTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(ledgerTime)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(ledgerTime, value)
}
