// Package policy implements the working-area policy: which paths
// survive a checkout cleanup, and which paths the archive codec must
// never pack into itself. Path classification is prefix-based over a
// parametrized exclusion set.
package policy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

const (
	// HistoryDirName is the embedded revision store's directory name
	// inside a working area.
	HistoryDirName = ".git"

	// IgnoreFileName is an ignore file that is never packed into the
	// archive. The go-git history store does not read it.
	IgnoreFileName = ".vgaignore"

	// ClassSuffix and ManifestSuffix are build-artefact endings that are
	// never packed into the archive. They are not in the default cleanup
	// exclusion set, so a checkout removes such files unless the
	// session's exclusion set lists them.
	ClassSuffix    = ".class"
	ManifestSuffix = "MANIFEST.MF"

	// LegacyDescriptorName is a legacy project descriptor carried over
	// from the source format. It is never packed; a checkout cleanup
	// removes it unless the session's exclusion set lists it.
	LegacyDescriptorName = ".project"
)

// ExclusionSet is the pair of collections attached to a session: paths
// relative to the working area excluded from cleanup, and filename
// suffixes excluded from cleanup.
type ExclusionSet struct {
	Paths    []string
	Suffixes []string
}

// New builds the exclusion set every session starts with: the history
// store directory and the control record path always survive cleanup.
func New(controlRecordPath string) ExclusionSet {
	return ExclusionSet{
		Paths:    []string{HistoryDirName, controlRecordPath},
		Suffixes: nil,
	}
}

// WithPaths returns a copy of e with additional excluded relative
// paths.
func (e ExclusionSet) WithPaths(paths ...string) ExclusionSet {
	out := e.clone()
	out.Paths = append(out.Paths, paths...)
	return out
}

// WithSuffixes returns a copy of e with additional excluded filename
// suffixes.
func (e ExclusionSet) WithSuffixes(suffixes ...string) ExclusionSet {
	out := e.clone()
	out.Suffixes = append(out.Suffixes, suffixes...)
	return out
}

func (e ExclusionSet) clone() ExclusionSet {
	out := ExclusionSet{
		Paths:    make([]string, len(e.Paths)),
		Suffixes: make([]string, len(e.Suffixes)),
	}
	copy(out.Paths, e.Paths)
	copy(out.Suffixes, e.Suffixes)
	return out
}

// Matches reports whether relPath (relative to the working area root,
// using forward slashes) is excluded from cleanup: its path starts with
// one of e.Paths, or its name ends with one of e.Suffixes.
func (e ExclusionSet) Matches(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	for _, p := range e.Paths {
		p = filepath.ToSlash(p)
		if clean == p || strings.HasPrefix(clean, p+"/") {
			return true
		}
	}
	for _, s := range e.Suffixes {
		if strings.HasSuffix(clean, s) {
			return true
		}
	}
	return false
}

// Clean deletes every file and directory under root except those
// matching excl: the checkout-cleanup step that removes all
// non-excluded content before materialising the target revision.
func Clean(root string, excl ExclusionSet) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return vgaerr.NewIOFailure("policy.Clean: read root", err)
	}

	for _, entry := range entries {
		if err := cleanEntry(root, entry.Name(), excl); err != nil {
			return err
		}
	}
	return nil
}

func cleanEntry(root, name string, excl ExclusionSet) error {
	full := filepath.Join(root, name)
	if excl.Matches(name) {
		return nil
	}

	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return vgaerr.NewIOFailure("policy.Clean: lstat", err)
	}

	if !info.IsDir() {
		if err := os.Remove(full); err != nil {
			return vgaerr.NewIOFailure("policy.Clean: remove file", err)
		}
		return nil
	}

	// A directory might contain excluded descendants even when the
	// directory's own name isn't excluded (e.g. a build/ directory that
	// only partially survives). Recurse instead of removing wholesale.
	children, err := os.ReadDir(full)
	if err != nil {
		return vgaerr.NewIOFailure("policy.Clean: read dir", err)
	}
	anyExcludedChild := false
	walkErr := filepath.Walk(full, func(p string, _ os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if p != full && excl.Matches(rel) {
			anyExcludedChild = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return vgaerr.NewIOFailure("policy.Clean: walk dir", walkErr)
	}
	if !anyExcludedChild {
		if err := os.RemoveAll(full); err != nil {
			return vgaerr.NewIOFailure("policy.Clean: remove dir", err)
		}
		return nil
	}
	for _, c := range children {
		childRel := filepath.Join(name, c.Name())
		if excl.Matches(childRel) {
			continue
		}
		if err := cleanEntry(root, childRel, excl); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPackExcludes returns the fixed base set of filename endings the
// archive codec must always omit when packing, unioned with any
// session-level cleanup-exclusion suffixes.
//
// This deliberately excludes only build-artefact endings. The history
// store directory and the control record are never listed here: both
// must end up inside the packed archive, since reopening it depends on
// finding them again. Pack excludes and the cleanup ExclusionSet answer
// different questions -- "what never gets packed" versus "what
// survives a checkout wipe" -- so only extra.Suffixes, never
// extra.Paths, feeds into this list.
func DefaultPackExcludes(extra ExclusionSet) []string {
	base := []string{
		IgnoreFileName,
		ClassSuffix,
		ManifestSuffix,
		LegacyDescriptorName,
	}
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(extra.Suffixes))
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range base {
		add(s)
	}
	for _, s := range extra.Suffixes {
		add(s)
	}
	return out
}
