package search

import (
	"context"
	"fmt"
	"time"

	"provenance/api/internal/store"
)

// Result is a single contribution tile matching a query.
type Result struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"reportId"`
	DocumentID string    `json:"documentId"`
	Ordinal    int       `json:"ordinal"`
	AuthorID   string    `json:"authorId"`
	Author     string    `json:"author"`
	Snippet    string    `json:"snippet"`
	StartedAt  time.Time `json:"startedAt"`
}

// Query describes a search request. DocumentID and AuthorID narrow the hits
// when set.
type Query struct {
	Text       string
	DocumentID string
	AuthorID   string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search over contribution tiles.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// TileRecord is the data we index for one contribution tile.
type TileRecord struct {
	ID            string `json:"id"`
	ReportID      string `json:"reportId"`
	DocumentID    string `json:"documentId"`
	Ordinal       int    `json:"ordinal"`
	AuthorID      string `json:"authorId"`
	Author        string `json:"author"`
	Text          string `json:"text"`
	StartedAt     int64  `json:"startedAt"`
	TotalChars    int    `json:"totalChars"`
	ExternalChars int    `json:"externalChars"`
}

// TileID is the index key of a tile. Meilisearch ids allow only
// alphanumerics, '-' and '_'.
func TileID(reportID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", reportID, ordinal)
}

// RecordsFromReport projects a stored report into index records.
func RecordsFromReport(report store.Report) []TileRecord {
	records := make([]TileRecord, 0, len(report.Tiles))
	for _, tile := range report.Tiles {
		records = append(records, TileRecord{
			ID:            TileID(report.ID, tile.Ordinal),
			ReportID:      report.ID,
			DocumentID:    report.DocumentID,
			Ordinal:       tile.Ordinal,
			AuthorID:      tile.AuthorID,
			Author:        tile.Author,
			Text:          tile.Text,
			StartedAt:     tile.StartedAt.UnixMilli(),
			TotalChars:    tile.TotalChars,
			ExternalChars: tile.ExternalChars,
		})
	}
	return records
}

func normalizePage(q Query) (int, int) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
