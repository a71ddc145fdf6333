package document

import (
	"encoding/json"
	"testing"
)

func TestInsertClampsIndex(t *testing.T) {
	d := New()
	if at := d.InsertText(5, []rune("abc"), "a"); at != 0 {
		t.Fatalf("insert into empty doc should clamp to 0, got %d", at)
	}
	if at := d.InsertText(-3, []rune("X"), "b"); at != 0 {
		t.Fatalf("negative index should clamp to 0, got %d", at)
	}
	if at := d.InsertText(99, []rune("Z"), "b"); at != 4 {
		t.Fatalf("large index should clamp to len, got %d", at)
	}
	if got := d.Text(); got != "XabcZ" {
		t.Fatalf("want XabcZ, got %q", got)
	}
	if d.Len() != 5 {
		t.Fatalf("want len 5, got %d", d.Len())
	}
}

func TestDeleteRange(t *testing.T) {
	tests := []struct {
		name        string
		start, end  int
		wantRemoved string
		wantText    string
		wantLo      int
		wantHi      int
	}{
		{name: "single", start: 1, end: 1, wantRemoved: "h", wantText: "ello", wantLo: 0, wantHi: 0},
		{name: "range", start: 2, end: 4, wantRemoved: "ell", wantText: "ho", wantLo: 1, wantHi: 3},
		{name: "reversed", start: 4, end: 2, wantRemoved: "ell", wantText: "ho", wantLo: 1, wantHi: 3},
		{name: "past end", start: 4, end: 40, wantRemoved: "lo", wantText: "hel", wantLo: 3, wantHi: 4},
		{name: "before start", start: -10, end: 0, wantRemoved: "h", wantText: "ello", wantLo: 0, wantHi: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			d.InsertText(0, []rune("hello"), "a")
			removed, lo, hi := d.DeleteRange(tt.start, tt.end)
			if got := Text(removed); got != tt.wantRemoved {
				t.Fatalf("removed = %q, want %q", got, tt.wantRemoved)
			}
			if got := d.Text(); got != tt.wantText {
				t.Fatalf("text = %q, want %q", got, tt.wantText)
			}
			if lo != tt.wantLo || hi != tt.wantHi {
				t.Fatalf("bounds = [%d,%d], want [%d,%d]", lo, hi, tt.wantLo, tt.wantHi)
			}
		})
	}
}

func TestDeleteRangeOnEmptyDocument(t *testing.T) {
	d := New()
	removed, lo, hi := d.DeleteRange(3, 9)
	if len(removed) != 0 || lo != 0 || hi != 0 {
		t.Fatalf("expected no-op on empty doc, got %v [%d,%d]", removed, lo, hi)
	}
}

func TestCharsIsACopy(t *testing.T) {
	d := New()
	d.InsertText(0, []rune("ab"), "a")
	chars := d.Chars()
	chars[0].Rune = 'z'
	if d.Text() != "ab" {
		t.Fatalf("mutating Chars() result changed the document: %q", d.Text())
	}
}

func TestAuthorsAndReset(t *testing.T) {
	d := New()
	d.InsertText(0, []rune("aa"), "alice")
	d.InsertText(1, []rune("b"), "bob")
	removed, _, _ := d.DeleteRange(1, 3)
	authors := Authors(removed)
	if len(authors) != 2 || authors[0] != "alice" || authors[1] != "bob" {
		t.Fatalf("unexpected authors %v", authors)
	}
	d.Reset()
	if d.Len() != 0 || d.Text() != "" {
		t.Fatalf("expected empty doc after reset, got %q", d.Text())
	}
}

func TestCharJSON(t *testing.T) {
	payload, err := json.Marshal([]Char{{Rune: 'é', AuthorID: "a"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `[{"ch":"é","authorId":"a"}]` {
		t.Fatalf("unexpected json %s", payload)
	}
	var decoded []Char
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0].Rune != 'é' || decoded[0].AuthorID != "a" {
		t.Fatalf("unexpected decoded char %+v", decoded[0])
	}
}
