package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("rpt")
	if !strings.HasPrefix(id, "rpt_") || len(id) != len("rpt_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "-") {
		t.Fatalf("unexpected bare id %q", bare)
	}
	if NewID("x") == NewID("x") {
		t.Fatal("ids should be unique")
	}
}
