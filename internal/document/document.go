// Package document holds the mutable, per-character attributed text that a
// changelog replay builds up.
package document

import (
	"encoding/json"
	"strings"
)

// Char is one character of the document and the author who inserted it.
type Char struct {
	Rune     rune
	AuthorID string
}

// MarshalJSON writes the character as a one-rune string.
func (c Char) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Ch       string `json:"ch"`
		AuthorID string `json:"authorId"`
	}{Ch: string(c.Rune), AuthorID: c.AuthorID})
}

func (c *Char) UnmarshalJSON(data []byte) error {
	var raw struct {
		Ch       string `json:"ch"`
		AuthorID string `json:"authorId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, r := range raw.Ch {
		c.Rune = r
		break
	}
	c.AuthorID = raw.AuthorID
	return nil
}

// Document is an ordered sequence of attributed characters. Indices passed in
// are clamped rather than rejected, so no call ever panics on bad input.
type Document struct {
	chars []Char
}

func New() *Document {
	return &Document{}
}

// Len returns the number of characters.
func (d *Document) Len() int {
	return len(d.chars)
}

// Insert splices chars in before the 0-based index at0, clamped to [0, Len()].
// It returns the index actually used.
func (d *Document) Insert(at0 int, chars []Char) int {
	at := clamp(at0, 0, len(d.chars))
	if len(chars) == 0 {
		return at
	}
	grown := make([]Char, 0, len(d.chars)+len(chars))
	grown = append(grown, d.chars[:at]...)
	grown = append(grown, chars...)
	grown = append(grown, d.chars[at:]...)
	d.chars = grown
	return at
}

// InsertText attributes every rune of text to authorID and inserts it at at0.
func (d *Document) InsertText(at0 int, text []rune, authorID string) int {
	chars := make([]Char, len(text))
	for i, r := range text {
		chars[i] = Char{Rune: r, AuthorID: authorID}
	}
	return d.Insert(at0, chars)
}

// DeleteRange removes the inclusive range between two raw 1-based endpoints.
// Each endpoint is converted to 0-based and clamped to [0, max(0, Len()-1)]
// independently; reversed endpoints are swapped. It returns the removed
// characters and the clamped 0-based bounds. On an empty document nothing is
// removed and both bounds are 0.
func (d *Document) DeleteRange(start1, end1 int) ([]Char, int, int) {
	last := max(0, len(d.chars)-1)
	lo := clamp(start1-1, 0, last)
	hi := clamp(end1-1, 0, last)
	if hi < lo {
		lo, hi = hi, lo
	}
	if len(d.chars) == 0 {
		return nil, lo, hi
	}
	removed := make([]Char, hi-lo+1)
	copy(removed, d.chars[lo:hi+1])
	d.chars = append(d.chars[:lo], d.chars[hi+1:]...)
	return removed, lo, hi
}

// Text concatenates all characters in order.
func (d *Document) Text() string {
	var b strings.Builder
	b.Grow(len(d.chars))
	for _, c := range d.chars {
		b.WriteRune(c.Rune)
	}
	return b.String()
}

// Chars returns a copy of the attributed characters.
func (d *Document) Chars() []Char {
	out := make([]Char, len(d.chars))
	copy(out, d.chars)
	return out
}

// Reset empties the document.
func (d *Document) Reset() {
	d.chars = nil
}

// Text joins the runes of chars.
func Text(chars []Char) string {
	var b strings.Builder
	for _, c := range chars {
		b.WriteRune(c.Rune)
	}
	return b.String()
}

// Authors returns the distinct author ids of chars in first-seen order.
func Authors(chars []Char) []string {
	seen := make(map[string]struct{}, 4)
	authors := make([]string, 0, 4)
	for _, c := range chars {
		if _, ok := seen[c.AuthorID]; ok {
			continue
		}
		seen[c.AuthorID] = struct{}{}
		authors = append(authors, c.AuthorID)
	}
	return authors
}

func clamp(value, lo, hi int) int {
	return max(lo, min(value, hi))
}
