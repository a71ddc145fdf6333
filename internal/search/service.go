package search

import (
	"context"
	"log"

	"provenance/api/internal/store"
)

type tileIndex interface {
	Searcher
	IndexTiles(tiles []TileRecord) error
}

type tileLoader interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]TileRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili tileIndex
	pgfts tileLoader
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured; pgfts may be nil when no database is attached.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "pgfts"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "pgfts"}
}

// IndexReport pushes a report's tiles to Meilisearch without waiting.
func (s *Service) IndexReport(report store.Report) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := RecordsFromReport(report)
	go func() {
		if err := s.meili.IndexTiles(records); err != nil {
			log.Printf("search: index report %s: %v", report.ID, err)
		}
	}()
}

// ReindexAllFromPG reloads every stored tile into Meilisearch. Called at
// startup so the index catches up with reports persisted while it was down.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexTiles(records); err != nil {
		log.Printf("search: reindex tiles: %v", err)
		return
	}
	log.Printf("search: reindexed %d tiles", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
