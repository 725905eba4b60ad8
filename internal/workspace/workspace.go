// Package workspace allocates collision-free sandbox directories for
// VGitArchive sessions and guards the sandbox base with an inter-process
// advisory lock. The sandbox base is a single RWMutex-guarded
// package-level singleton, set once.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

const (
	// lockFileName is created directly under the sandbox base root and
	// holds the advisory inter-process lock for the lifetime of the
	// process.
	lockFileName = ".lock"

	// DefaultMaxBackups bounds the crash-salvage generation rotation
	// performed once at sandbox-base initialisation.
	DefaultMaxBackups = 5

	// DefaultLockAttempts and DefaultLockDelay implement the bounded
	// retry discipline for advisory lock acquisition.
	DefaultLockAttempts = 10
	DefaultLockDelay    = 300 * time.Millisecond
)

// Base is the process-wide sandbox base: a single temporary root under
// which every archive's sandbox is mirrored. It is set exactly once per
// process via SetTmpFolder; a second call fails with
// vgaerr.ErrTmpAlreadyInitialized.
type Base struct {
	root       string // the configured sandbox base
	liveRoot   string // root/0, the current generation's live sandboxes
	maxBackups int
	lockFile   *os.File
}

var (
	mu      sync.RWMutex
	current *Base
)

// SetTmpFolder sets the process-wide sandbox base exactly once. The
// backup-generation rotation runs synchronously as part of this call,
// before liveRoot becomes available to callers.
func SetTmpFolder(root string) error {
	return SetTmpFolderWithOptions(root, DefaultMaxBackups, DefaultLockAttempts, DefaultLockDelay)
}

// SetTmpFolderWithOptions is SetTmpFolder with every tunable named in
// vgaconfig.Settings exposed explicitly, for front ends (cmd/vga) that
// load those tunables from a settings file instead of accepting the
// library defaults.
func SetTmpFolderWithOptions(root string, maxBackups, lockAttempts int, lockDelay time.Duration) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return vgaerr.ErrTmpAlreadyInitialized
	}

	b, err := initBaseWithRetry(root, maxBackups, lockAttempts, lockDelay)
	if err != nil {
		return err
	}
	current = b
	return nil
}

// CurrentBase returns the process-wide sandbox base, initialising it
// from the OS temp directory on first use if SetTmpFolder was never
// called.
func CurrentBase() (*Base, error) {
	mu.RLock()
	b := current
	mu.RUnlock()
	if b != nil {
		return b, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return current, nil
	}
	b, err := initBaseWithRetry(os.TempDir(), DefaultMaxBackups, DefaultLockAttempts, DefaultLockDelay)
	if err != nil {
		return nil, err
	}
	current = b
	return b, nil
}

// ResetForTest clears the process-wide sandbox base singleton so tests
// can exercise SetTmpFolder/CurrentBase from a clean slate. Not part of
// the public programmatic surface.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	if current != nil && current.lockFile != nil {
		_ = current.lockFile.Close()
	}
	current = nil
}

func initBaseWithRetry(root string, maxBackups, lockAttempts int, lockDelay time.Duration) (*Base, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, vgaerr.NewIOFailure("workspace.initBase", err)
	}

	lockPath := filepath.Join(root, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, vgaerr.NewIOFailure("workspace.initBase: open lock", err)
	}
	if err := acquireLock(f, lockAttempts, lockDelay); err != nil {
		_ = f.Close()
		return nil, err
	}

	if err := rotateGenerations(root, maxBackups); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Base{
		root:       root,
		liveRoot:   filepath.Join(root, "0"),
		maxBackups: maxBackups,
		lockFile:   f,
	}, nil
}

// acquireLock polls flock(2) up to attempts times with delay between
// tries. Release is deferred to process exit: the fd is simply never
// explicitly unlocked.
func acquireLock(f *os.File, attempts int, delay time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(delay)
	}
	return vgaerr.NewIOFailure("workspace.acquireLock", fmt.Errorf("advisory lock busy after %d attempts: %w", attempts, lastErr))
}

// rotateGenerations deletes generation directories numbered at/past
// maxBackups, deletes generation maxBackups-1, shifts every other
// generation up by one, then creates a fresh empty generation 0.
// Entries whose names are not pure decimal numbers, and plain files
// such as the lock file, are left in place.
func rotateGenerations(root string, maxBackups int) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return vgaerr.NewIOFailure("workspace.rotateGenerations: read", err)
	}

	gens := make(map[int]bool)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, convErr := strconv.Atoi(e.Name())
		if convErr != nil || n < 0 {
			continue // not a pure-decimal generation name, leave untouched
		}
		if n >= maxBackups {
			_ = os.RemoveAll(filepath.Join(root, e.Name()))
			continue
		}
		gens[n] = true
	}

	oldest := maxBackups - 1
	if gens[oldest] {
		if err := os.RemoveAll(filepath.Join(root, strconv.Itoa(oldest))); err != nil {
			return vgaerr.NewIOFailure("workspace.rotateGenerations: prune oldest", err)
		}
	}

	for k := maxBackups - 2; k >= 0; k-- {
		if !gens[k] {
			continue
		}
		src := filepath.Join(root, strconv.Itoa(k))
		dst := filepath.Join(root, strconv.Itoa(k+1))
		if err := os.Rename(src, dst); err != nil {
			return vgaerr.NewIOFailure("workspace.rotateGenerations: rename", err)
		}
	}

	newZero := filepath.Join(root, "0")
	if err := os.MkdirAll(newZero, 0o755); err != nil {
		return vgaerr.NewIOFailure("workspace.rotateGenerations: create generation 0", err)
	}
	return nil
}

// Sandbox is one allocated, on-disk working area for a single session.
type Sandbox struct {
	Path    string
	Archive string
}

// platformCloser is the seam for platform-specific sandbox removal: on
// Windows, mandatory file locks can make an in-process RemoveAll fail,
// so deletion needs deferring to a process-exit shell command instead.
// This environment is POSIX-only, so only posixCloser is wired; a
// Windows build would supply a platformCloser that schedules the
// delete instead of performing it inline.
type platformCloser interface {
	remove(path string) error
}

type posixCloser struct{}

func (posixCloser) remove(path string) error { return os.RemoveAll(path) }

var sandboxCloser platformCloser = posixCloser{}

// Remove deletes the sandbox directory and everything under it.
func (s *Sandbox) Remove() error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := sandboxCloser.remove(s.Path); err != nil {
		return vgaerr.NewIOFailure("Sandbox.Remove", err)
	}
	return nil
}

// Exists reports whether the sandbox directory is currently present on
// disk - the definition of "opened" for a session.
func (s *Sandbox) Exists() bool {
	if s == nil {
		return false
	}
	info, err := os.Stat(s.Path)
	return err == nil && info.IsDir()
}

// mirrorArchivePath mirrors archive's absolute path under the sandbox
// base, stripping the POSIX leading slash or rewriting a Windows drive
// prefix.
func mirrorArchivePath(archive string) string {
	if runtime.GOOS == "windows" {
		if len(archive) >= 2 && archive[1] == ':' {
			drive := strings.ToUpper(string(archive[0]))
			return filepath.Join("Drive_"+drive, archive[2:])
		}
		return archive
	}
	return strings.TrimPrefix(archive, string(filepath.Separator))
}

// Allocate computes the deterministic mirrored sandbox for archive
// under this base's live generation, choosing the smallest non-negative
// k for which <basename>.vtmp<k> does not yet exist.
func (b *Base) Allocate(archive string) (*Sandbox, error) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w: %v", vgaerr.ErrInvalidArgument, err)
	}

	parent := filepath.Join(b.liveRoot, mirrorArchivePath(filepath.Dir(abs)))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, vgaerr.NewIOFailure("Base.Allocate: mkdir parent", err)
	}

	base := filepath.Base(abs)
	for k := 0; ; k++ {
		candidate := filepath.Join(parent, fmt.Sprintf("%s.vtmp%d", base, k))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return &Sandbox{Path: candidate, Archive: abs}, nil
		}
	}
}

// AllocateExisting returns the deterministic sandbox path for archive at
// index k without creating it, used by open() to detect a sandbox
// surviving from a crashed prior session at k=0.
func (b *Base) AllocateExisting(archive string, k int) (*Sandbox, error) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w: %v", vgaerr.ErrInvalidArgument, err)
	}
	parent := filepath.Join(b.liveRoot, mirrorArchivePath(filepath.Dir(abs)))
	base := filepath.Base(abs)
	return &Sandbox{
		Path:    filepath.Join(parent, fmt.Sprintf("%s.vtmp%d", base, k)),
		Archive: abs,
	}, nil
}

// AllocateRandom allocates a sandbox for archive prefixed with a random
// token, used by the overwrite-safety check to open a second,
// disposable copy of the on-disk archive. Up to 10 attempts are made
// before giving up.
func (b *Base) AllocateRandom(archive string) (*Sandbox, error) {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w: %v", vgaerr.ErrInvalidArgument, err)
	}

	parent := filepath.Join(b.liveRoot, mirrorArchivePath(filepath.Dir(abs)))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, vgaerr.NewIOFailure("Base.AllocateRandom: mkdir parent", err)
	}

	base := filepath.Base(abs)
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token := uuid.NewString()[:8]
		candidate := filepath.Join(parent, fmt.Sprintf("%s-%s.vtmp", token, base))
		if err := os.Mkdir(candidate, 0o755); err == nil {
			return &Sandbox{Path: candidate, Archive: abs}, nil
		}
	}
	return nil, vgaerr.NewIOFailure("Base.AllocateRandom", fmt.Errorf("exhausted %d attempts to allocate a random sandbox", maxAttempts))
}

// Root returns the configured sandbox base's literal root directory.
func (b *Base) Root() string { return b.root }
