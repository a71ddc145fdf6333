package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("not found")

// Report is one persisted replay. Result holds the full replay output as
// JSON; Tiles and Totals are the searchable projections of it.
type Report struct {
	ID            string
	DocumentID    string
	Fingerprint   string
	Options       json.RawMessage
	Result        json.RawMessage
	ChangelogKey  string
	Records       int
	DeletionCount int
	FinalLength   int
	Tiles         []TileRecord
	Totals        []AuthorTotal
	CreatedAt     time.Time
}

// ReportSummary is a report without its payload.
type ReportSummary struct {
	ID            string
	DocumentID    string
	Fingerprint   string
	Records       int
	TileCount     int
	DeletionCount int
	FinalLength   int
	AuthorCount   int
	CreatedAt     time.Time
}

// TileRecord is a coalesced contribution tile as stored for search.
type TileRecord struct {
	Ordinal       int
	AuthorID      string
	Author        string
	StartedAt     time.Time
	EndedAt       time.Time
	Text          string
	TotalChars    int
	TotalWords    int
	InternalChars int
	ExternalChars int
}

// AuthorTotal is a per-author rollup row.
type AuthorTotal struct {
	AuthorID      string
	Author        string
	Tiles         int
	TotalChars    int
	TotalWords    int
	InternalChars int
	InternalWords int
	ExternalChars int
	ExternalWords int
}

// Summary derives the list view of r.
func (r Report) Summary() ReportSummary {
	return ReportSummary{
		ID:            r.ID,
		DocumentID:    r.DocumentID,
		Fingerprint:   r.Fingerprint,
		Records:       r.Records,
		TileCount:     len(r.Tiles),
		DeletionCount: r.DeletionCount,
		FinalLength:   r.FinalLength,
		AuthorCount:   len(r.Totals),
		CreatedAt:     r.CreatedAt,
	}
}
