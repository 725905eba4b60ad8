// Package session implements the versioned-file lifecycle engine that
// couples a working area with an embedded history store and an archive
// codec. This is the core subsystem of VGitArchive.
//
// Two behaviours are intentionally stricter than a naive reading of
// older implementations might suggest:
//   - Contains implements set-membership over commit IDs, not
//     positional comparison.
//   - CheckoutLatestVersion always checks out version N when N >= 1;
//     there is no special case that skips re-checkout at N==1.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mitchellh/copystructure"

	"github.com/miho/vgitarchive/internal/archivecodec"
	"github.com/miho/vgitarchive/internal/controlrecord"
	"github.com/miho/vgitarchive/internal/history"
	"github.com/miho/vgitarchive/internal/policy"
	"github.com/miho/vgitarchive/internal/vgaerr"
	"github.com/miho/vgitarchive/internal/workspace"
	"github.com/miho/vgitarchive/logging"
)

// Listener receives checkout lifecycle events. Listener panics are the
// caller's responsibility; this package never recovers from them, and
// a listener never alters session state.
type Listener interface {
	PreCheckout(commit history.CommitRecord)
	PostCheckout(commit history.CommitRecord)
}

// Options configures a Session beyond its archive path and codec.
type Options struct {
	// FlushCommits, when true, makes Commit call Flush immediately
	// afterwards.
	FlushCommits bool
}

// Session mediates access to one archive. The zero value is not
// usable; construct with New.
type Session struct {
	archive string
	codec   archivecodec.Codec
	opts    Options

	sandbox *workspace.Sandbox
	store   history.Store
	commits []history.CommitRecord // oldest first, index 0 is the private root commit

	currentVersion int
	excl           policy.ExclusionSet
	listeners      []Listener
}

// SetTmpFolder sets the process-wide sandbox base exactly once.
func SetTmpFolder(path string) error {
	return workspace.SetTmpFolder(path)
}

// New constructs a closed session against archiveFile. codec defaults
// to the default ZIP codec (archivecodec.NewDefault()) when nil.
func New(archiveFile string, codec archivecodec.Codec, opts Options) (*Session, error) {
	if archiveFile == "" {
		return nil, fmt.Errorf("session: %w: empty archive path", vgaerr.ErrInvalidArgument)
	}
	if codec == nil {
		codec = archivecodec.NewDefault()
	}

	abs, err := filepath.Abs(archiveFile)
	if err != nil {
		return nil, fmt.Errorf("session: %w: %v", vgaerr.ErrInvalidArgument, err)
	}

	base, err := workspace.CurrentBase()
	if err != nil {
		return nil, err
	}
	sandbox, err := base.AllocateExisting(abs, 0)
	if err != nil {
		return nil, err
	}

	return &Session{
		archive: abs,
		codec:   codec,
		opts:    opts,
		sandbox: sandbox,
		excl:    policy.New(controlrecord.FileName),
	}, nil
}

// isOpen reports whether the session is open: its working area exists
// on disk. This is deliberately disk-state, not an in-memory flag, so
// that a freshly constructed Session correctly reports "open" against
// a sandbox left dirty by a crashed prior process, which is the
// precondition Cleanup/CanClose rely on.
func (s *Session) isOpen() bool {
	return s.sandbox.Exists()
}

// Create materialises an empty archive and leaves the session closed.
func (s *Session) Create() error {
	if _, err := os.Stat(s.archive); err == nil {
		return fmt.Errorf("session: %w: archive already exists", vgaerr.ErrAlreadyOpen)
	}
	if s.isOpen() {
		return fmt.Errorf("session: %w: a dirty sandbox already exists for this archive", vgaerr.ErrAlreadyOpen)
	}
	if !registryInsert(s.archive) {
		return vgaerr.ErrAlreadyOpen
	}
	// create() closes the session again on success regardless of outcome,
	// so the registry entry is always released before returning.
	defer registryRemove(s.archive)

	if err := os.MkdirAll(s.sandbox.Path, 0o755); err != nil {
		return vgaerr.NewIOFailure("Session.Create: mkdir sandbox", err)
	}

	rec, err := controlrecord.New("1.0", "")
	if err != nil {
		_ = s.sandbox.Remove()
		return err
	}
	if err := controlrecord.Write(s.sandbox.Path, rec); err != nil {
		_ = s.sandbox.Remove()
		return err
	}

	store := history.NewGitStore()
	if err := store.Init(s.sandbox.Path); err != nil {
		_ = s.sandbox.Remove()
		return err
	}
	s.store = store
	if err := s.reloadCommits(); err != nil {
		_ = s.sandbox.Remove()
		return err
	}
	s.currentVersion = 0

	if err := s.Flush(); err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	s.store = nil
	return s.sandbox.Remove()
}

// Open attaches the session to an existing archive, unpacking it into
// the sandbox and optionally checking out the latest revision.
func (s *Session) Open(checkoutLatest bool) error {
	if _, err := os.Stat(s.archive); err != nil {
		return vgaerr.NewIOFailure("Session.Open: stat archive", err)
	}
	if registryContains(s.archive) {
		return vgaerr.ErrAlreadyOpen
	}
	if s.isOpen() {
		// A sandbox already sits on disk at the deterministic path with
		// no registry entry: a prior process crashed mid-session. This
		// platform has no mandatory-lock complication, so refuse rather
		// than silently adopting a working area whose safety we haven't
		// verified; the caller resolves it via Cleanup (which runs the
		// canClose() safety check) before retrying Open.
		return fmt.Errorf("session: %w: a dirty sandbox already exists for this archive; run Cleanup first", vgaerr.ErrAlreadyOpen)
	}
	if !registryInsert(s.archive) {
		return vgaerr.ErrAlreadyOpen
	}

	if err := s.codec.Unpack(s.archive, s.sandbox.Path); err != nil {
		registryRemove(s.archive)
		_ = s.sandbox.Remove()
		return err
	}

	if _, err := controlrecord.Read(s.sandbox.Path); err != nil {
		registryRemove(s.archive)
		_ = s.sandbox.Remove()
		return err
	}

	store := history.NewGitStore()
	if err := store.Open(s.sandbox.Path); err != nil {
		registryRemove(s.archive)
		_ = s.sandbox.Remove()
		return err
	}
	s.store = store
	if err := s.reloadCommits(); err != nil {
		registryRemove(s.archive)
		_ = s.sandbox.Remove()
		return err
	}
	s.currentVersion = s.numberOfVersions()

	logging.Info(s.logCtx(), "session opened", "versions", s.numberOfVersions())

	if checkoutLatest {
		return s.CheckoutLatestVersion()
	}
	return nil
}

// logCtx returns a context carrying this session's archive path so
// lifecycle log lines attribute to it automatically.
func (s *Session) logCtx() context.Context {
	return logging.WithArchive(context.Background(), s.archive)
}

// GetContent returns the working area path. Requires an opened session.
func (s *Session) GetContent() (string, error) {
	if !s.isOpen() {
		return "", vgaerr.ErrNotOpen
	}
	return s.sandbox.Path, nil
}

func (s *Session) ensureStoreAttached() error {
	if s.store != nil {
		return nil
	}
	store := history.NewGitStore()
	if err := store.Open(s.sandbox.Path); err != nil {
		return err
	}
	s.store = store
	return s.reloadCommits()
}

func (s *Session) reloadCommits() error {
	commits, err := s.store.ListCommitsTopoReversed()
	if err != nil {
		return err
	}
	s.commits = commits
	return nil
}

func (s *Session) numberOfVersions() int {
	if len(s.commits) == 0 {
		return 0
	}
	return len(s.commits) - 1
}

// Commit stages and records a new revision.
func (s *Session) Commit(message string) error {
	if !s.isOpen() {
		return vgaerr.ErrNotOpen
	}
	if err := s.ensureStoreAttached(); err != nil {
		return err
	}

	status, err := s.store.Status()
	if err != nil {
		return err
	}
	if len(status.Conflicting) > 0 {
		return vgaerr.ErrConflicted
	}
	if status.IsClean() {
		return history.ErrNothingToCommit
	}

	if len(status.Missing) > 0 {
		if err := s.store.Rm(status.Missing...); err != nil {
			return err
		}
	}
	if err := s.store.AddAll(); err != nil {
		return err
	}

	if message == "" {
		message = "no message"
	}
	name, email := currentUser()
	if _, err := s.store.Commit(message, name, email); err != nil {
		return err
	}

	if err := s.reloadCommits(); err != nil {
		return err
	}
	s.currentVersion = s.numberOfVersions()

	logging.Info(s.logCtx(), "commit recorded", "version", s.currentVersion)

	if s.opts.FlushCommits {
		return s.Flush()
	}
	return nil
}

// CheckoutVersion materialises revision i into the working area,
// deleting every non-excluded file first.
func (s *Session) CheckoutVersion(i int) error {
	if !s.isOpen() {
		return vgaerr.ErrNotOpen
	}
	if err := s.ensureStoreAttached(); err != nil {
		return err
	}

	n := s.numberOfVersions()
	if i < 1 || i > n {
		return vgaerr.NewInvalidVersion(i, n)
	}

	commit := s.commits[i]
	for _, l := range s.listeners {
		l.PreCheckout(commit)
	}

	if err := policy.Clean(s.sandbox.Path, s.excl); err != nil {
		return err
	}

	entries, err := s.store.ReadTree(commit.ID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Path == controlrecord.FileName {
			continue // filtered out by the session manager, not the store
		}
		if err := s.materialiseBlob(e); err != nil {
			return err
		}
	}

	s.currentVersion = i
	logging.Debug(s.logCtx(), "checkout complete", "version", i)

	for _, l := range s.listeners {
		l.PostCheckout(commit)
	}
	return nil
}

func (s *Session) materialiseBlob(e history.TreeEntry) error {
	target := filepath.Join(s.sandbox.Path, filepath.FromSlash(e.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return vgaerr.NewIOFailure("Session.CheckoutVersion: mkdir", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return vgaerr.NewIOFailure("Session.CheckoutVersion: create", err)
	}
	defer f.Close()

	if err := s.store.ReadBlob(e.BlobID, f); err != nil {
		return err
	}
	return nil
}

// CheckoutFirstVersion checks out version 1, a no-op if there are no
// user-visible versions yet.
func (s *Session) CheckoutFirstVersion() error {
	if s.numberOfVersions() < 1 {
		return nil
	}
	return s.CheckoutVersion(1)
}

// CheckoutPreviousVersion checks out currentVersion-1, a no-op when
// HasPreviousVersion() is false.
func (s *Session) CheckoutPreviousVersion() error {
	if !s.HasPreviousVersion() {
		return nil
	}
	return s.CheckoutVersion(s.currentVersion - 1)
}

// CheckoutNextVersion checks out currentVersion+1, a no-op when
// HasNextVersion() is false.
func (s *Session) CheckoutNextVersion() error {
	if !s.HasNextVersion() {
		return nil
	}
	return s.CheckoutVersion(s.currentVersion + 1)
}

// CheckoutLatestVersion always checks out version N when N >= 1, a
// no-op only when there are no user-visible versions at all.
func (s *Session) CheckoutLatestVersion() error {
	n := s.numberOfVersions()
	if n < 1 {
		return nil
	}
	return s.CheckoutVersion(n)
}

// HasPreviousVersion reports whether CheckoutPreviousVersion would move
// the current version.
func (s *Session) HasPreviousVersion() bool {
	return s.currentVersion > 1
}

// HasNextVersion reports whether CheckoutNextVersion would move the
// current version.
func (s *Session) HasNextVersion() bool {
	return s.currentVersion < s.numberOfVersions()
}

// GetVersions returns the user-visible commit records, oldest first,
// excluding the private root commit.
func (s *Session) GetVersions() ([]history.CommitRecord, error) {
	if !s.isOpen() {
		return nil, vgaerr.ErrNotOpen
	}
	if err := s.ensureStoreAttached(); err != nil {
		return nil, err
	}
	if len(s.commits) <= 1 {
		return nil, nil
	}
	out := make([]history.CommitRecord, len(s.commits)-1)
	copy(out, s.commits[1:])
	return out, nil
}

// GetUncommittedChanges returns the sorted union of changed path
// strings, excluding any ending in one of endings.
func (s *Session) GetUncommittedChanges(endings ...string) ([]string, error) {
	if !s.isOpen() {
		return nil, vgaerr.ErrNotOpen
	}
	if err := s.ensureStoreAttached(); err != nil {
		return nil, err
	}
	status, err := s.store.Status()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	add := func(paths []string) {
		for _, p := range paths {
			excluded := false
			for _, e := range endings {
				if len(p) >= len(e) && p[len(p)-len(e):] == e {
					excluded = true
					break
				}
			}
			if !excluded {
				seen[p] = true
			}
		}
	}
	add(status.Added)
	add(status.Changed)
	add(status.Missing)
	add(status.Modified)
	add(status.Removed)
	add(status.Untracked)
	add(status.Conflicting)

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// HasUncommittedChanges reports whether the working tree has any
// pending changes.
func (s *Session) HasUncommittedChanges() (bool, error) {
	changes, err := s.GetUncommittedChanges()
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

// Contains implements set-membership semantics: true iff self has at
// least as many versions as other, and every commit ID in other's
// history also exists in self's history.
func (s *Session) Contains(other *Session) (bool, error) {
	if !s.isOpen() {
		return false, vgaerr.ErrNotOpen
	}
	if err := s.ensureStoreAttached(); err != nil {
		return false, err
	}
	if !other.isOpen() {
		return false, vgaerr.ErrNotOpen
	}
	if err := other.ensureStoreAttached(); err != nil {
		return false, err
	}
	return containsCommits(s.commits, other.commits), nil
}

func containsCommits(self, other []history.CommitRecord) bool {
	if len(self) < len(other) {
		return false
	}
	ids := make(map[string]bool, len(self))
	for _, c := range self {
		ids[c.ID] = true
	}
	for _, c := range other {
		if !ids[c.ID] {
			return false
		}
	}
	return true
}

// CanClose is the overwrite-safety check: it proves the dirty working
// area's history is a superset of the on-disk archive's history before
// Close/Cleanup is allowed to replace it.
func (s *Session) CanClose() (bool, error) {
	if !s.isOpen() {
		return true, nil
	}
	if err := s.ensureStoreAttached(); err != nil {
		return false, err
	}

	if _, err := os.Stat(s.archive); os.IsNotExist(err) {
		// Nothing on disk yet to be destructive toward.
		return true, nil
	}

	base, err := workspace.CurrentBase()
	if err != nil {
		return false, err
	}
	second, err := base.AllocateRandom(s.archive)
	if err != nil {
		return false, err
	}
	defer func() { _ = second.Remove() }()

	if err := s.codec.Unpack(s.archive, second.Path); err != nil {
		return false, err
	}
	otherStore := history.NewGitStore()
	if err := otherStore.Open(second.Path); err != nil {
		return false, err
	}
	defer otherStore.Close()

	otherCommits, err := otherStore.ListCommitsTopoReversed()
	if err != nil {
		return false, err
	}
	return containsCommits(s.commits, otherCommits), nil
}

// Flush repacks the working area into the archive, keeping a backup of
// the previous archive at "<archive>~". A no-op when the session is
// closed.
func (s *Session) Flush() error {
	if !s.isOpen() {
		return nil
	}

	if _, err := os.Stat(s.archive); err == nil {
		if err := copyFile(s.archive, s.archive+"~"); err != nil {
			return vgaerr.NewIOFailure("Session.Flush: backup", err)
		}
	}

	excludes := policy.DefaultPackExcludes(s.excl)
	if err := s.codec.Pack(s.sandbox.Path, s.archive, excludes...); err != nil {
		return vgaerr.NewIOFailure("Session.Flush: pack", err)
	}
	return nil
}

// SwitchToNewArchive retargets the session to dest, copying the
// sandbox content across if the new sandbox path differs from the old
// one, then flushing to write the new archive. The old archive is left
// in place.
func (s *Session) SwitchToNewArchive(dest string) error {
	if !s.isOpen() {
		return vgaerr.ErrNotOpen
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("session: %w: %v", vgaerr.ErrInvalidArgument, err)
	}

	base, err := workspace.CurrentBase()
	if err != nil {
		return err
	}
	newSandbox, err := base.Allocate(absDest)
	if err != nil {
		return err
	}

	oldSandbox := s.sandbox
	if newSandbox.Path != oldSandbox.Path {
		if err := copyDir(oldSandbox.Path, newSandbox.Path); err != nil {
			return err
		}
	}

	registryRemove(s.archive)
	if oldSandbox.Path != newSandbox.Path {
		if err := oldSandbox.Remove(); err != nil {
			return err
		}
	}

	// Deep-copy the exclusion set so the retargeted session never
	// aliases slices with whatever the caller still holds a reference
	// to from before the switch.
	copied, err := copystructure.Copy(s.excl)
	if err != nil {
		return vgaerr.NewIOFailure("Session.SwitchToNewArchive: copy exclusions", err)
	}
	s.excl = copied.(policy.ExclusionSet)

	s.archive = absDest
	s.sandbox = newSandbox
	if err := s.store.Close(); err != nil {
		return err
	}
	s.store = nil
	if err := s.ensureStoreAttached(); err != nil {
		return err
	}

	if !registryInsert(s.archive) {
		return vgaerr.ErrAlreadyOpen
	}

	return s.Flush()
}

// DeleteHistory collapses the history store down to a single commit
// over the currently checked-out tree.
func (s *Session) DeleteHistory() error {
	if !s.isOpen() {
		return vgaerr.ErrNotOpen
	}
	if err := s.CheckoutLatestVersion(); err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
		s.store = nil
	}

	historyDir := filepath.Join(s.sandbox.Path, policy.HistoryDirName)
	if err := os.RemoveAll(historyDir); err != nil {
		return vgaerr.NewIOFailure("Session.DeleteHistory: remove store", err)
	}

	store := history.NewGitStore()
	if err := store.Init(s.sandbox.Path); err != nil {
		return err
	}
	s.store = store

	name, email := currentUser()
	if _, err := store.Commit("initial commit (cleared history)", name, email); err != nil {
		return err
	}
	if err := s.reloadCommits(); err != nil {
		return err
	}
	s.currentVersion = s.numberOfVersions()
	return nil
}

// Cleanup closes a session left open from a previous run, provided
// CanClose() passes; a no-op when not open.
func (s *Session) Cleanup() error {
	if !s.isOpen() {
		return nil
	}
	ok, err := s.CanClose()
	if err != nil {
		return err
	}
	if !ok {
		return vgaerr.ErrOverwriteWouldLoseHistory
	}
	return s.Close()
}

// Close deregisters the session, flushes, and removes the sandbox.
// Idempotent.
func (s *Session) Close() error {
	registryRemove(s.archive)
	if err := s.Flush(); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
		s.store = nil
	}
	return s.sandbox.Remove()
}

// Exists reports whether file (relative to the working area) is
// present.
func (s *Session) Exists(file string) (bool, error) {
	if file == "" {
		return false, vgaerr.ErrInvalidArgument
	}
	if !s.isOpen() {
		return false, vgaerr.ErrNotOpen
	}
	_, err := os.Stat(filepath.Join(s.sandbox.Path, file))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, vgaerr.NewIOFailure("Session.Exists", err)
}

// SetExcludeEndingsFromCleanup extends the cleanup exclusion suffixes.
func (s *Session) SetExcludeEndingsFromCleanup(endings ...string) {
	s.excl = s.excl.WithSuffixes(endings...)
}

// ExcludePathsFromCleanup extends the cleanup exclusion paths.
func (s *Session) ExcludePathsFromCleanup(paths ...string) {
	s.excl = s.excl.WithPaths(paths...)
}

// AddVersionEventListener registers l to receive checkout events.
func (s *Session) AddVersionEventListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// RemoveVersionEventListener unregisters l.
func (s *Session) RemoveVersionEventListener(l Listener) {
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
