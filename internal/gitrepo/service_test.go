package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first := Snapshot{
		ReportID: "rpt_1",
		Text:     "line one\n",
		Authors:  []AuthorShare{{AuthorID: "u1", Author: "Ada", TotalChars: 9, Tiles: 1}},
	}
	c1, err := svc.CommitSnapshot("doc-1", first, "Replay rpt_1")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if c1.Hash == "" || c1.Added != 1 {
		t.Fatalf("unexpected first commit %+v", c1)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1", ".git")); err != nil {
		t.Fatalf("repo missing: %v", err)
	}

	second := first
	second.ReportID = "rpt_2"
	second.Text = "line one\nline two\n"
	c2, err := svc.CommitSnapshot("doc-1", second, "Replay rpt_2")
	if err != nil {
		t.Fatalf("CommitSnapshot() second error = %v", err)
	}
	if c2.Hash == c1.Hash || c2.Added != 1 || c2.Removed != 0 {
		t.Fatalf("unexpected second commit %+v", c2)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != c2.Hash || !strings.HasPrefix(history[1].Message, "Replay rpt_1") {
		t.Fatalf("unexpected history %+v", history)
	}

	limited, err := svc.History("doc-1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one entry, got %v %v", limited, err)
	}

	snap, err := svc.SnapshotAt("doc-1", c1.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if snap.Text != "line one\n" || snap.ReportID != "rpt_1" || len(snap.Authors) != 1 || snap.Authors[0].Author != "Ada" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := svc.SnapshotAt("doc-1", "deadbeef"); !errors.Is(err, ErrUnknownSnapshot) {
		t.Fatalf("expected ErrUnknownSnapshot, got %v", err)
	}
}

func TestUnchangedSnapshotReturnsHead(t *testing.T) {
	svc := New(t.TempDir())
	snap := Snapshot{ReportID: "rpt", Text: "same"}
	c1, err := svc.CommitSnapshot("doc", snap, "first")
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	c2, err := svc.CommitSnapshot("doc", snap, "second")
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if c1.Hash != c2.Hash {
		t.Fatalf("expected head reuse, got %s then %s", c1.Hash, c2.Hash)
	}
}

func TestInvalidDocumentIDs(t *testing.T) {
	svc := New(t.TempDir())
	for _, id := range []string{"", "..", "../escape", "a/b", ".hidden"} {
		if _, err := svc.CommitSnapshot(id, Snapshot{}, "x"); !errors.Is(err, ErrInvalidDocumentID) {
			t.Fatalf("expected ErrInvalidDocumentID for %q, got %v", id, err)
		}
	}
}

func TestHistoryWithoutRepo(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("never-replayed", 10); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("expected ErrNoSnapshots, got %v", err)
	}
}

func TestConcurrentSnapshotsSerialize(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CommitSnapshot("doc-c", Snapshot{ReportID: fmt.Sprint(i), Text: fmt.Sprintf("v%d", i)}, fmt.Sprintf("r%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent commit: %v", err)
		}
	}
	history, err := svc.History("doc-c", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 commits, got %d", len(history))
	}
}
