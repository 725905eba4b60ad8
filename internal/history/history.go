// Package history defines the embedded revision-store interface the
// session manager drives, and a go-git-backed implementation. The
// revision store is a pluggable module behind this interface: any
// implementation is acceptable as long as identifiers are content
// hashes and ListCommitsTopoReversed is total-order deterministic.
package history

import (
	"fmt"
	"io"
	"os/user"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

// CommitRecord is one revision: an opaque content-hash identifier plus
// the metadata the session manager surfaces to callers.
type CommitRecord struct {
	ID        string
	Message   string
	Author    string
	When      time.Time
	ParentIDs []string
}

// Status is the sets of path strings the session manager inspects
// before staging a commit.
type Status struct {
	Added       []string
	Changed     []string
	Missing     []string
	Modified    []string
	Removed     []string
	Untracked   []string
	Conflicting []string
}

// IsClean reports whether every set in s is empty.
func (s Status) IsClean() bool {
	return len(s.Added) == 0 && len(s.Changed) == 0 && len(s.Missing) == 0 &&
		len(s.Modified) == 0 && len(s.Removed) == 0 && len(s.Untracked) == 0 &&
		len(s.Conflicting) == 0
}

// TreeEntry is one blob entry read from a commit's tree, excluding
// tree-only (directory) entries.
type TreeEntry struct {
	Path   string
	BlobID string
}

// Store is the revision-store interface the session manager drives.
// Errors propagate as a single vgaerr.IOFailure carrying the
// underlying cause, except for the distinguished conditions the
// session manager checks by sentinel (ErrNothingToCommit, ErrNoHead,
// vgaerr.ErrConflicted).
type Store interface {
	Init(root string) error
	Open(root string) error
	Status() (Status, error)
	AddAll() error
	Rm(paths ...string) error
	Commit(message, authorName, authorEmail string) (string, error)
	ListCommitsTopoReversed() ([]CommitRecord, error)
	ReadTree(commitID string) ([]TreeEntry, error)
	ReadBlob(blobID string, w io.Writer) error
	Close() error
}

// Distinguished commit failures the session manager checks by
// sentinel.
var (
	ErrNothingToCommit = fmt.Errorf("history: nothing to commit")
	ErrNoHead          = fmt.Errorf("history: no HEAD")
)

// GitStore is the default Store implementation, backed by go-git's
// embedded, pure-Go git implementation (no external git binary
// required).
type GitStore struct {
	root string
	repo *git.Repository
	wt   *git.Worktree
}

// NewGitStore constructs an unattached store; call Init or Open before
// any other method.
func NewGitStore() *GitStore {
	return &GitStore{}
}

// Init creates a fresh store at root, stages every file currently
// present, and makes the private root commit (version 0) that is
// never exposed to callers.
func (g *GitStore) Init(root string) error {
	repo, err := git.PlainInit(root, false)
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.Init", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.Init: worktree", err)
	}
	g.root, g.repo, g.wt = root, repo, wt

	if err := g.AddAll(); err != nil {
		return err
	}

	name, email := DefaultAuthor(repo)
	_, err = wt.Commit("root", &git.CommitOptions{
		Author:            &object.Signature{Name: name, Email: email, When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.Init: root commit", err)
	}
	return nil
}

// Open attaches to an existing store rooted at root.
func (g *GitStore) Open(root string) error {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.Open", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.Open: worktree", err)
	}
	g.root, g.repo, g.wt = root, repo, wt
	return nil
}

// Close releases no process-owned resources beyond clearing the
// in-memory handles; go-git's dotgit storage has no explicit close.
func (g *GitStore) Close() error {
	g.repo, g.wt = nil, nil
	return nil
}

// Status reports the working-tree status translated into the path-set
// vocabulary the session manager expects.
func (g *GitStore) Status() (Status, error) {
	raw, err := g.wt.Status()
	if err != nil {
		return Status{}, vgaerr.NewIOFailure("GitStore.Status", err)
	}

	var s Status
	for path, fs := range raw {
		switch fs.Staging {
		case git.Added:
			s.Added = append(s.Added, path)
		case git.Modified:
			s.Changed = append(s.Changed, path)
		case git.Deleted:
			s.Removed = append(s.Removed, path)
		case git.UpdatedButUnmerged:
			s.Conflicting = append(s.Conflicting, path)
		}
		switch fs.Worktree {
		case git.Deleted:
			s.Missing = append(s.Missing, path)
		case git.Modified:
			s.Modified = append(s.Modified, path)
		case git.Untracked:
			s.Untracked = append(s.Untracked, path)
		case git.UpdatedButUnmerged:
			s.Conflicting = append(s.Conflicting, path)
		}
	}
	return s, nil
}

// AddAll stages everything currently present in the working tree.
func (g *GitStore) AddAll() error {
	if _, err := g.wt.Add("."); err != nil {
		return vgaerr.NewIOFailure("GitStore.AddAll", err)
	}
	return nil
}

// Rm stages deletions for paths that are missing from the working tree
// but still tracked.
func (g *GitStore) Rm(paths ...string) error {
	for _, p := range paths {
		if _, err := g.wt.Remove(p); err != nil {
			return vgaerr.NewIOFailure(fmt.Sprintf("GitStore.Rm(%s)", p), err)
		}
	}
	return nil
}

// Commit records a new revision. An empty message falls back to
// "no message".
func (g *GitStore) Commit(message, authorName, authorEmail string) (string, error) {
	if message == "" {
		message = "no message"
	}

	// Emptiness is the session manager's call (it checks status() before
	// ever invoking Commit), so this layer always allows an empty commit
	// rather than second-guessing it.
	hash, err := g.wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", vgaerr.NewIOFailure("GitStore.Commit", err)
	}
	return hash.String(), nil
}

// ListCommitsTopoReversed returns every commit reachable from HEAD,
// oldest first (including the private root commit), relying on the
// linear (non-branching) history invariant.
func (g *GitStore) ListCommitsTopoReversed() ([]CommitRecord, error) {
	head, err := g.repo.Head()
	if err != nil {
		return nil, ErrNoHead
	}

	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, vgaerr.NewIOFailure("GitStore.ListCommitsTopoReversed", err)
	}
	defer iter.Close()

	var records []CommitRecord
	err = iter.ForEach(func(c *object.Commit) error {
		parents := make([]string, len(c.ParentHashes))
		for i, p := range c.ParentHashes {
			parents[i] = p.String()
		}
		records = append(records, CommitRecord{
			ID:        c.Hash.String(),
			Message:   c.Message,
			Author:    c.Author.Name,
			When:      c.Author.When,
			ParentIDs: parents,
		})
		return nil
	})
	if err != nil {
		return nil, vgaerr.NewIOFailure("GitStore.ListCommitsTopoReversed: walk", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// ReadTree returns every blob entry in commitID's tree, excluding
// tree-only (directory) entries; the control-record path is filtered
// out by the session manager, not here.
func (g *GitStore) ReadTree(commitID string) ([]TreeEntry, error) {
	hash := plumbing.NewHash(commitID)
	commit, err := g.repo.CommitObject(hash)
	if err != nil {
		return nil, vgaerr.NewIOFailure("GitStore.ReadTree: commit", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, vgaerr.NewIOFailure("GitStore.ReadTree: tree", err)
	}

	var entries []TreeEntry
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, vgaerr.NewIOFailure("GitStore.ReadTree: walk", err)
		}
		if entry.Mode == filemode.Dir { // tree (directory) entry, not a blob
			continue
		}
		entries = append(entries, TreeEntry{Path: name, BlobID: entry.Hash.String()})
	}
	return entries, nil
}

// ReadBlob streams blobID's content to w.
func (g *GitStore) ReadBlob(blobID string, w io.Writer) error {
	hash := plumbing.NewHash(blobID)
	blob, err := g.repo.BlobObject(hash)
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.ReadBlob: object", err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return vgaerr.NewIOFailure("GitStore.ReadBlob: reader", err)
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		return vgaerr.NewIOFailure("GitStore.ReadBlob: copy", err)
	}
	return nil
}

// DefaultAuthor resolves a commit signature from repository config
// first, then the OS user as a fallback, then a fixed default.
func DefaultAuthor(repo *git.Repository) (name, email string) {
	if repo != nil {
		if cfg, err := repo.Config(); err == nil {
			if cfg.User.Name != "" {
				name = cfg.User.Name
			}
			if cfg.User.Email != "" {
				email = cfg.User.Email
			}
		}
	}
	if name == "" {
		if u, err := user.Current(); err == nil && u.Username != "" {
			name = u.Username
		}
	}
	if name == "" {
		name = "vgitarchive"
	}
	if email == "" {
		email = name + "@localhost"
	}
	return name, email
}
