// Package gitrepo keeps one git repository per document holding the replayed
// final text and authorship totals, one commit per persisted report.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	textFile    = "final.txt"
	authorsFile = "authors.json"
	branch      = "main"
)

var (
	ErrInvalidDocumentID = errors.New("invalid document id")
	ErrNoSnapshots       = errors.New("no snapshots")
	ErrUnknownSnapshot   = errors.New("unknown snapshot")
)

var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

// Snapshot is the committed state of a document after one replay.
type Snapshot struct {
	ReportID string         `json:"reportId"`
	Text     string         `json:"-"`
	Authors  []AuthorShare  `json:"authors"`
	Meta     map[string]int `json:"meta,omitempty"`
}

type AuthorShare struct {
	AuthorID   string `json:"authorId"`
	Author     string `json:"author"`
	TotalChars int    `json:"totalChars"`
	Tiles      int    `json:"tiles"`
}

type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// CommitSnapshot writes the snapshot files and commits them on main, creating
// the repository on first use. An unchanged snapshot returns the current head.
func (s *Service) CommitSnapshot(documentID string, snap Snapshot, message string) (Commit, error) {
	path, err := s.repoPath(documentID)
	if err != nil {
		return Commit{}, err
	}
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := openOrInit(path)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	authors, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal authors: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, textFile), []byte(snap.Text), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", textFile, err)
	}
	if err := os.WriteFile(filepath.Join(path, authorsFile), append(authors, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", authorsFile, err)
	}
	for _, name := range []string{textFile, authorsFile} {
		if _, err := worktree.Add(name); err != nil {
			return Commit{}, fmt.Errorf("git add %s: %w", name, err)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Provenance",
			Email: "replay@provenance.local",
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return Commit{}, fmt.Errorf("resolve head: %w", headErr)
		}
		hash = head.Hash()
	} else if err != nil {
		return Commit{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History lists snapshot commits newest first.
func (s *Service) History(documentID string, limit int) ([]Commit, error) {
	repo, unlock, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt reads the snapshot committed at hash, which may be abbreviated.
func (s *Service) SnapshotAt(documentID, hash string) (Snapshot, error) {
	repo, unlock, err := s.open(documentID)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()

	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSnapshot, hash)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	var snap Snapshot
	raw, err := readFile(commitObj, authorsFile)
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", authorsFile, err)
	}
	text, err := readFile(commitObj, textFile)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Text = string(text)
	return snap, nil
}

func (s *Service) open(documentID string) (*git.Repository, func(), error) {
	path, err := s.repoPath(documentID)
	if err != nil {
		return nil, nil, err
	}
	lock := s.documentLock(documentID)
	lock.Lock()

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open %s: %w", documentID, ErrNoSnapshots)
	}
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, lock.Unlock, nil
}

func (s *Service) repoPath(documentID string) (string, error) {
	if !documentIDPattern.MatchString(documentID) || documentID == "." || documentID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, documentID)
	}
	return filepath.Join(s.baseDir, documentID), nil
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func openOrInit(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func readFile(commitObj *object.Commit, name string) ([]byte, error) {
	file, err := commitObj.File(name)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", name, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func toCommit(commitObj *object.Commit) Commit {
	c := Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	stats, err := commitObj.Stats()
	if err != nil {
		return c
	}
	for _, stat := range stats {
		if stat.Name == textFile {
			c.Added += stat.Addition
			c.Removed += stat.Deletion
		}
	}
	return c
}
