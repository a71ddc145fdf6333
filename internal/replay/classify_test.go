package replay

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello   World ", "hello world"},
		{"A\tB\n\nC", "a b c"},
		{"   ", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifierBoundary(t *testing.T) {
	c := Classifier{MinPasteLen: DefaultMinPasteLen}
	recent := NewRecentDeletes(DefaultMaxRecentDeletes)

	short := "abcdefghijklmnopqrstuvwx"
	exact := "abcdefghijklmnopqrstuvwxy"
	if len(short) != 24 || len(exact) != 25 {
		t.Fatalf("fixture lengths wrong: %d %d", len(short), len(exact))
	}

	if kind, _ := c.Classify(short, "", recent); kind != PasteNone {
		t.Fatalf("24 chars should not be classified, got %q", kind)
	}
	if kind, _ := c.Classify(short, "prefix "+short+" suffix", recent); kind != PasteNone {
		t.Fatalf("24 chars should not be classified even when present, got %q", kind)
	}
	if kind, _ := c.Classify(exact, "Intro "+strings.ToUpper(exact)+" outro", recent); kind != PasteInternal {
		t.Fatalf("25 chars present in document should be internal, got %q", kind)
	}
	if kind, _ := c.Classify(exact, "unrelated text", recent); kind != PasteExternal {
		t.Fatalf("25 chars matching nothing should be external, got %q", kind)
	}
}

func TestClassifierRecentDeletes(t *testing.T) {
	c := Classifier{MinPasteLen: DefaultMinPasteLen}
	recent := NewRecentDeletes(DefaultMaxRecentDeletes)
	text := "This paragraph was cut and pasted back"
	recent.Push("  this paragraph WAS cut and\npasted back ")

	if kind, _ := c.Classify(text, "", recent); kind != PasteInternal {
		t.Fatalf("expected internal from recent deletes, got %q", kind)
	}
}

func TestClassifierOptionalVariants(t *testing.T) {
	recent := NewRecentDeletes(DefaultMaxRecentDeletes)
	recent.Push("moved words")

	cut := Classifier{MinPasteLen: DefaultMinPasteLen, CutPasteMinLen: 5}
	kind, cutPaste := cut.Classify("Moved words", "", recent)
	if kind != PasteInternal || !cutPaste {
		t.Fatalf("expected short cut-paste match, got %q cut=%v", kind, cutPaste)
	}
	if kind, cutPaste := cut.Classify("abc", "", recent); kind != PasteNone || cutPaste {
		t.Fatalf("below cut-paste length should stay unclassified, got %q cut=%v", kind, cutPaste)
	}

	organic := Classifier{MinPasteLen: DefaultMinPasteLen, LabelOrganicTyping: true}
	if kind, _ := organic.Classify("typed", "", recent); kind != PasteOrganic {
		t.Fatalf("expected organic label, got %q", kind)
	}
}

func TestRecentDeletesCapacity(t *testing.T) {
	recent := NewRecentDeletes(10)
	for i := 0; i < 11; i++ {
		if !recent.Push(fmt.Sprintf("Deleted   Fragment %d", i)) {
			t.Fatalf("push %d rejected", i)
		}
	}
	items := recent.Items()
	if len(items) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(items))
	}
	if items[0] != "deleted fragment 1" || items[9] != "deleted fragment 10" {
		t.Fatalf("expected oldest evicted first, got %v", items)
	}
	if recent.Contains("deleted fragment 0") {
		t.Fatal("evicted entry still present")
	}
}

func TestRecentDeletesIgnoresBlank(t *testing.T) {
	recent := NewRecentDeletes(3)
	if recent.Push(" \n\t ") {
		t.Fatal("blank text should not be pushed")
	}
	if recent.Len() != 0 {
		t.Fatalf("expected empty ring, got %v", recent.Items())
	}
	recent.Push("x")
	recent.Clear()
	if recent.Len() != 0 {
		t.Fatal("expected empty ring after Clear")
	}
}

func TestPasteKindJSON(t *testing.T) {
	payload, err := json.Marshal([]PasteKind{PasteNone, PasteExternal})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `[null,"external"]` {
		t.Fatalf("unexpected json %s", payload)
	}
	var decoded []PasteKind
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded[0] != PasteNone || decoded[1] != PasteExternal {
		t.Fatalf("unexpected decoded kinds %v", decoded)
	}
}
