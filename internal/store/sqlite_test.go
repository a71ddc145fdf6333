package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("OpenLedger(%q): %v", path, err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func sampleReport(id, documentID string, createdAt time.Time) Report {
	return Report{
		ID:            id,
		DocumentID:    documentID,
		Fingerprint:   "fp-" + documentID,
		Options:       json.RawMessage(`{"minPasteLen":25}`),
		Result:        json.RawMessage(`{"finalText":"hello"}`),
		ChangelogKey:  "changelogs/" + documentID + "/" + id + ".json",
		Records:       3,
		DeletionCount: 1,
		FinalLength:   5,
		CreatedAt:     createdAt,
		Tiles: []TileRecord{
			{Ordinal: 0, AuthorID: "u1", Author: "Ada", StartedAt: createdAt, EndedAt: createdAt.Add(time.Second), Text: "hel", TotalChars: 3, TotalWords: 1},
			{Ordinal: 1, AuthorID: "u1", Author: "Ada", StartedAt: createdAt.Add(time.Hour), EndedAt: createdAt.Add(time.Hour), Text: "lo", TotalChars: 2, TotalWords: 1},
		},
		Totals: []AuthorTotal{
			{AuthorID: "u1", Author: "Ada", Tiles: 2, TotalChars: 5, TotalWords: 2},
		},
	}
}

func TestLedgerSaveAndGet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	created := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)

	if err := l.SaveReport(ctx, sampleReport("rpt_1", "doc-a", created)); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := l.GetReport(ctx, "rpt_1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.DocumentID != "doc-a" || got.Fingerprint != "fp-doc-a" || got.FinalLength != 5 {
		t.Fatalf("unexpected report %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at %v, want %v", got.CreatedAt, created)
	}
	if string(got.Result) != `{"finalText":"hello"}` {
		t.Fatalf("unexpected result payload %s", got.Result)
	}
	if len(got.Tiles) != 2 || got.Tiles[1].Text != "lo" || !got.Tiles[1].StartedAt.Equal(created.Add(time.Hour)) {
		t.Fatalf("unexpected tiles %+v", got.Tiles)
	}
	if len(got.Totals) != 1 || got.Totals[0].Tiles != 2 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}
}

func TestLedgerNotFound(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.GetReport(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.FindByFingerprint(context.Background(), "doc", "fp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerDuplicateIDFails(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	report := sampleReport("rpt_dup", "doc-a", time.Now())
	if err := l.SaveReport(ctx, report); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := l.SaveReport(ctx, report); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	summaries, err := l.ListReports(ctx, "doc-a", 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("failed save must not leave partial rows, got %d reports", len(summaries))
	}
}

func TestLedgerListAndFingerprint(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"rpt_a", "rpt_b", "rpt_c"} {
		doc := "doc-x"
		if id == "rpt_c" {
			doc = "doc-y"
		}
		if err := l.SaveReport(ctx, sampleReport(id, doc, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveReport(%s): %v", id, err)
		}
	}

	summaries, err := l.ListReports(ctx, "doc-x", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ID != "rpt_b" || summaries[1].ID != "rpt_a" {
		t.Fatalf("expected newest first for doc-x, got %+v", summaries)
	}
	if summaries[0].TileCount != 2 || summaries[0].AuthorCount != 1 {
		t.Fatalf("unexpected counts %+v", summaries[0])
	}

	all, err := l.ListReports(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListReports(all): %v", err)
	}
	if len(all) != 3 || all[0].ID != "rpt_c" {
		t.Fatalf("unexpected listing %+v", all)
	}

	found, err := l.FindByFingerprint(ctx, "doc-x", "fp-doc-x")
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if found.ID != "rpt_b" {
		t.Fatalf("expected newest match rpt_b, got %s", found.ID)
	}
}

func TestReportSummary(t *testing.T) {
	r := sampleReport("rpt_s", "doc", time.Now())
	s := r.Summary()
	if s.TileCount != 2 || s.AuthorCount != 1 || s.DeletionCount != 1 || s.ID != "rpt_s" {
		t.Fatalf("unexpected summary %+v", s)
	}
}
