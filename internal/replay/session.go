// Package replay rebuilds a document from its changelog and attributes every
// inserted span to an author, grouped into contribution tiles.
//
// A Session owns all mutable state of one replay: the document, the
// recent-deletion ring and the single open tile. Records must be applied in
// log order; paste classification and tile boundaries depend on it.
package replay

import (
	"time"

	"provenance/api/internal/changelog"
	"provenance/api/internal/document"
)

// Meta carries replay counters.
type Meta struct {
	Records     int `json:"records"`
	Events      int `json:"events"`
	Inserts     int `json:"inserts"`
	Deletes     int `json:"deletes"`
	Reverts     int `json:"reverts"`
	Skipped     int `json:"skipped"`
	FinalLength int `json:"finalLength"`
}

// Result is the full output of a replay.
type Result struct {
	Tiles           []Tile            `json:"tiles"`
	Deletions       []Deletion        `json:"deletions"`
	TotalsByUser    map[string]Totals `json:"totalsByUser"`
	FinalText       string            `json:"finalText"`
	Meta            Meta              `json:"meta"`
	CharAttribution []document.Char   `json:"charAttribution,omitempty"`
}

type openTile struct {
	authorID string
	author   string
	start    time.Time
	last     time.Time
	segments []Segment
}

type Session struct {
	opts       Options
	users      changelog.UserMap
	classifier Classifier
	doc        *document.Document
	recent     *RecentDeletes
	open       *openTile
	tiles      []Tile
	deletions  []Deletion
	meta       Meta
}

func NewSession(opts Options, users changelog.UserMap) *Session {
	opts = opts.sanitized()
	if users == nil {
		users = changelog.UserMap{}
	}
	return &Session{
		opts:       opts,
		users:      users,
		classifier: opts.classifier(),
		doc:        document.New(),
		recent:     NewRecentDeletes(opts.MaxRecentDeletes),
		tiles:      make([]Tile, 0),
		deletions:  make([]Deletion, 0),
	}
}

// Apply replays one top-level record.
func (s *Session) Apply(record changelog.Record) {
	s.meta.Records++
	s.apply(record.Op, record.Timestamp, record.AuthorID)
}

// Text returns the current document text.
func (s *Session) Text() string {
	return s.doc.Text()
}

// Finish closes the open tile, coalesces and rolls up. The session must not
// be used afterwards.
func (s *Session) Finish() Result {
	s.flush()
	tiles := Coalesce(s.tiles, s.deletions, s.opts.Coalesce)
	result := Result{
		Tiles:        tiles,
		Deletions:    s.deletions,
		TotalsByUser: Rollup(tiles),
		FinalText:    s.doc.Text(),
		Meta:         s.meta,
	}
	result.Meta.FinalLength = s.doc.Len()
	if s.opts.IncludeChars {
		result.CharAttribution = s.doc.Chars()
	}
	return result
}

func (s *Session) apply(op changelog.Op, at time.Time, authorID string) {
	switch op := op.(type) {
	case changelog.Insert:
		s.insert(op, s.doc.Text(), at, authorID)
	case changelog.Delete:
		s.remove(op, at, authorID)
	case changelog.Multi:
		for _, sub := range op.Ops {
			s.apply(sub, at, authorID)
		}
	case changelog.Replace:
		for _, sub := range op.Ops {
			s.apply(sub, at, authorID)
		}
	case changelog.Revert:
		s.meta.Reverts++
		if s.opts.RevertFlushesTile {
			s.flush()
		}
		if s.opts.RevertClearsRecentDeletes {
			s.recent.Clear()
		}
		s.doc.Reset()
		for _, sub := range op.Ops {
			s.apply(sub, at, authorID)
		}
	default:
		s.meta.Skipped++
		if s.opts.Logger != nil {
			s.opts.Logger.Printf("replay: skipped operation %T at %s", op, at.Format(time.RFC3339))
		}
	}
}

// insert classifies op against preInsert, the document text captured before
// this insert, and only then mutates the document.
func (s *Session) insert(op changelog.Insert, preInsert string, at time.Time, authorID string) {
	text := string(op.Text)
	kind, cutPaste := s.classifier.Classify(text, preInsert, s.recent)
	index := s.doc.InsertText(op.Before-1, op.Text, authorID)

	s.meta.Events++
	s.meta.Inserts++

	if s.open == nil || s.open.authorID != authorID || at.Sub(s.open.last) > s.opts.TileGap {
		s.flush()
		s.open = &openTile{
			authorID: authorID,
			author:   s.users.DisplayName(authorID),
			start:    at,
			last:     at,
		}
	}
	s.open.segments = append(s.open.segments, Segment{
		Index:     index,
		Text:      text,
		Paste:     kind,
		CutPaste:  cutPaste,
		Timestamp: at,
	})
	s.open.last = at
}

func (s *Session) remove(op changelog.Delete, at time.Time, authorID string) {
	s.flush()

	removed, lo, hi := s.doc.DeleteRange(op.Start, op.End)
	text := document.Text(removed)
	s.recent.Push(text)

	authors := document.Authors(removed)
	names := make([]string, len(authors))
	for i, id := range authors {
		names[i] = s.users.DisplayName(id)
	}
	deletion := Deletion{
		Type:               DeletionType,
		Author:             s.users.DisplayName(authorID),
		AuthorID:           authorID,
		Timestamp:          at,
		Text:               text,
		Range:              [2]int{lo + 1, hi + 1},
		DeletedAuthorIDs:   authors,
		DeletedAuthorNames: names,
	}
	if s.opts.FlagCrossAuthorDeletes {
		cross := false
		for _, id := range authors {
			if id != authorID {
				cross = true
				break
			}
		}
		deletion.CrossAuthor = &cross
	}
	s.deletions = append(s.deletions, deletion)
	s.meta.Events++
	s.meta.Deletes++
}

func (s *Session) flush() {
	if s.open == nil {
		return
	}
	s.tiles = append(s.tiles, buildTile(s.open.authorID, s.open.author, s.open.start, s.open.segments))
	s.open = nil
}
