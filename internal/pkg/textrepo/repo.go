package textrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Failure reasons surfaced to callers. A dirty tree indicates an interrupted
// previous save and must become a task level error, not a silent overwrite.
var (
	ErrPath         = fmt.Errorf("repo path does not exist")
	ErrFormat       = fmt.Errorf("not a repository")
	ErrUncommitted  = fmt.Errorf("repository has uncommitted changes")
	ErrEmpty        = fmt.Errorf("repository has no commits")
	ErrInconsistent = fmt.Errorf("repository head does not match expected commit")
)

// Repo provides single-file version control over per-task directories.
// Not safe for concurrent access to the same directory.
type Repo struct {
	name, email string
}

// NewRepo creates a repo helper committing with the given signature
func NewRepo(name, email string) (*Repo, error) {
	if name == "" {
		return nil, fmt.Errorf("no committer name")
	}
	return &Repo{name: name, email: email}, nil
}

// Init initializes an empty repository in dir
func (r *Repo) Init(dir string) error {
	if _, err := git.PlainInit(dir, false); err != nil {
		return fmt.Errorf("can't init repo: %w", err)
	}
	return nil
}

// Check verifies the directory holds a committed, clean repository.
// If commitID is not empty the head must point to it.
func (r *Repo) Check(dir string, commitID string) error {
	if _, err := os.Stat(dir); err != nil {
		return ErrPath
	}
	gr, err := git.PlainOpen(dir)
	if err != nil {
		return ErrFormat
	}
	wt, err := gr.Worktree()
	if err != nil {
		return fmt.Errorf("can't get worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return fmt.Errorf("can't get status: %w", err)
	}
	if !st.IsClean() {
		return ErrUncommitted
	}
	head, err := gr.Head()
	if err != nil {
		return ErrEmpty
	}
	if commitID != "" && head.Hash().String() != commitID {
		return ErrInconsistent
	}
	return nil
}

// Commit stages file (a base name inside dir) and commits it.
// Returns the new commit id and its timestamp.
func (r *Repo) Commit(dir, file, message string) (string, time.Time, error) {
	gr, err := git.PlainOpen(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't open repo: %w", err)
	}
	wt, err := gr.Worktree()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't get worktree: %w", err)
	}
	if _, err := wt.Add(file); err != nil {
		return "", time.Time{}, fmt.Errorf("can't stage '%s': %w", file, err)
	}
	now := time.Now()
	h, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: r.name, Email: r.email, When: now},
		// an unchanged save still moves the commit pointer
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't commit: %w", err)
	}
	return h.String(), now, nil
}

// Revert restores file content from an earlier commit and recommits it,
// keeping subsequent history intact.
func (r *Repo) Revert(dir, file, commitID string) (string, time.Time, error) {
	gr, err := git.PlainOpen(dir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't open repo: %w", err)
	}
	c, err := gr.CommitObject(plumbing.NewHash(commitID))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't find commit '%s': %w", commitID, err)
	}
	f, err := c.File(file)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't find '%s' at %s: %w", file, commitID, err)
	}
	content, err := f.Contents()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("can't read '%s' at %s: %w", file, commitID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0600); err != nil {
		return "", time.Time{}, fmt.Errorf("can't write '%s': %w", file, err)
	}
	return r.Commit(dir, file, fmt.Sprintf("reverted '%s' to %s", file, commitID))
}
