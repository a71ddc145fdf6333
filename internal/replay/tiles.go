package replay

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	TileType     = "INSERT_TILE"
	DeletionType = "DELETION"
)

var wordPattern = regexp.MustCompile(`\w+`)

// Segment is the span produced by one insert operation.
type Segment struct {
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Paste     PasteKind `json:"paste"`
	CutPaste  bool      `json:"cutPaste,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Stats are derived from a tile's segments and never stored on their own.
type Stats struct {
	InternalWords int `json:"internalWords"`
	ExternalWords int `json:"externalWords"`
	InternalChars int `json:"internalChars"`
	ExternalChars int `json:"externalChars"`
	TotalWords    int `json:"totalWords"`
	TotalChars    int `json:"totalChars"`
}

func (s *Stats) add(other Stats) {
	s.InternalWords += other.InternalWords
	s.ExternalWords += other.ExternalWords
	s.InternalChars += other.InternalChars
	s.ExternalChars += other.ExternalChars
	s.TotalWords += other.TotalWords
	s.TotalChars += other.TotalChars
}

// Tile is a run of one author's inserts.
type Tile struct {
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	AuthorID      string    `json:"authorId"`
	Timestamp     time.Time `json:"timestamp"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	Text          string    `json:"text"`
	Segments      []Segment `json:"segments"`
	Stats         Stats     `json:"stats"`
}

// FirstIndex is the insert index of the first segment, or 0.
func (t Tile) FirstIndex() int {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[0].Index
}

// LastIndex is the insert index of the last segment, or 0.
func (t Tile) LastIndex() int {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].Index
}

// LastTime is the timestamp of the last segment, falling back to the start.
func (t Tile) LastTime() time.Time {
	if len(t.Segments) == 0 {
		return t.Timestamp
	}
	return t.Segments[len(t.Segments)-1].Timestamp
}

// Deletion records one delete operation. Deletions never belong to a tile.
type Deletion struct {
	Type               string    `json:"type"`
	Author             string    `json:"author"`
	AuthorID           string    `json:"authorId"`
	Timestamp          time.Time `json:"timestamp"`
	Text               string    `json:"text"`
	Range              [2]int    `json:"range"`
	DeletedAuthorIDs   []string  `json:"deletedAuthorIds"`
	DeletedAuthorNames []string  `json:"deletedAuthorNames"`
	CrossAuthor        *bool     `json:"crossAuthor,omitempty"`
}

// buildTile assembles a finished tile and recomputes its text and stats from
// segments.
func buildTile(authorID, author string, start time.Time, segments []Segment) Tile {
	var text strings.Builder
	var stats Stats
	for _, seg := range segments {
		text.WriteString(seg.Text)
		chars := utf8.RuneCountInString(seg.Text)
		words := countWords(seg.Text)
		switch seg.Paste {
		case PasteInternal:
			stats.InternalChars += chars
			stats.InternalWords += words
		case PasteExternal:
			stats.ExternalChars += chars
			stats.ExternalWords += words
		}
	}
	combined := text.String()
	stats.TotalChars = utf8.RuneCountInString(combined)
	stats.TotalWords = countWords(combined)

	tile := Tile{
		Type:      TileType,
		Title:     tileTitle(start),
		Author:    author,
		AuthorID:  authorID,
		Timestamp: start,
		Text:      combined,
		Segments:  segments,
		Stats:     stats,
	}
	tile.LastTimestamp = tile.LastTime()
	return tile
}

func tileTitle(start time.Time) string {
	return "Contribution — " + start.UTC().Format("2006-01-02 15:04:05")
}

func countWords(s string) int {
	return len(wordPattern.FindAllStringIndex(s, -1))
}
