package session

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miho/vgitarchive/internal/archivecodec"
	"github.com/miho/vgitarchive/internal/controlrecord"
	"github.com/miho/vgitarchive/internal/history"
	"github.com/miho/vgitarchive/internal/vgaerr"
	"github.com/miho/vgitarchive/internal/workspace"
)

func freshBase(t *testing.T) {
	t.Helper()
	workspace.ResetForTest()
	require.NoError(t, workspace.SetTmpFolder(t.TempDir()))
	t.Cleanup(workspace.ResetForTest)
}

func newTestSession(t *testing.T, archive string) *Session {
	t.Helper()
	s, err := New(archive, archivecodec.NewDefault(), Options{})
	require.NoError(t, err)
	return s
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// TestScenarioS1CreateCommitNavigate is the literal S1 scenario from
// the testable-properties section: create/commit/navigate round trips.
func TestScenarioS1CreateCommitNavigate(t *testing.T) {
	freshBase(t)
	archive := filepath.Join(t.TempDir(), "project.vfile")

	s := newTestSession(t, archive)
	require.NoError(t, s.Create())
	require.NoError(t, s.Open(true))
	defer s.Close()

	content, err := s.GetContent()
	require.NoError(t, err)

	file1 := filepath.Join(content, "file1.txt")
	require.NoError(t, os.WriteFile(file1, []byte(""), 0o644))
	require.NoError(t, s.Commit("empty")) // version 1

	require.NoError(t, appendLine(file1, "NanoTime 1: 1000"))
	require.NoError(t, s.Commit("ts1")) // version 2

	require.NoError(t, appendLine(file1, "NanoTime 2: 2000"))
	require.NoError(t, s.Commit("ts2")) // version 3

	require.NoError(t, s.CheckoutLatestVersion())
	assert.Equal(t, 2, countLines(readFile(t, file1)))

	require.NoError(t, s.CheckoutPreviousVersion())
	assert.Equal(t, 1, countLines(readFile(t, file1)))

	require.NoError(t, s.CheckoutPreviousVersion())
	assert.Equal(t, 0, countLines(readFile(t, file1)))

	assert.False(t, s.HasPreviousVersion())
}

// TestScenarioS2PerVersionConsistency performs repeated commits and
// asserts each version's checked-out content matches what was written.
func TestScenarioS2PerVersionConsistency(t *testing.T) {
	freshBase(t)
	archive := filepath.Join(t.TempDir(), "project.vfile")

	s := newTestSession(t, archive)
	require.NoError(t, s.Create())
	require.NoError(t, s.Open(true))
	defer s.Close()

	content, err := s.GetContent()
	require.NoError(t, err)
	file1 := filepath.Join(content, "file1.txt")
	require.NoError(t, os.WriteFile(file1, []byte(""), 0o644))

	const numCommits = 10 // authoritative count, not a hardcoded loop bound
	for i := 1; i <= numCommits; i++ {
		require.NoError(t, appendLine(file1, fmt.Sprintf("NanoTime %d: %d", i, i*1000)))
		require.NoError(t, s.Commit(fmt.Sprintf("ts%d", i)))
	}

	for i := 1; i <= numCommits; i++ {
		require.NoError(t, s.CheckoutVersion(i))
		lines := splitLines(readFile(t, file1))
		require.Len(t, lines, i)
		assert.Equal(t, fmt.Sprintf("NanoTime %d: %d", i, i*1000), lines[i-1])
	}
}

// TestScenarioS3Containment mirrors the ancestry-containment scenario:
// C (a copy of B with extra commits) contains B but not A; B contains
// neither A nor C.
func TestScenarioS3Containment(t *testing.T) {
	freshBase(t)
	dir := t.TempDir()

	archiveA := filepath.Join(dir, "a.vfile")
	a := newTestSession(t, archiveA)
	require.NoError(t, a.Create())
	require.NoError(t, a.Open(true))
	commitN(t, a, 5)
	require.NoError(t, a.Close())

	archiveB := filepath.Join(dir, "b.vfile")
	b := newTestSession(t, archiveB)
	require.NoError(t, b.Create())
	require.NoError(t, b.Open(true))
	// Identical content committed by the same author within the same
	// second gets identical commit IDs, so B commits a file of its own to
	// keep its history distinct from A's.
	bContent, err := b.GetContent()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(bContent, "b.txt"), []byte("b"), 0o644))
	commitN(t, b, 5)
	require.NoError(t, b.Close())

	archiveC := filepath.Join(dir, "c.vfile")
	require.NoError(t, copyFileForTest(archiveB, archiveC))
	c := newTestSession(t, archiveC)
	require.NoError(t, c.Open(true))
	commitN(t, c, 5)

	// Reopen A and B read-only (closed sessions) to compare histories.
	a2 := newTestSession(t, archiveA)
	require.NoError(t, a2.Open(false))
	defer a2.Close()
	b2 := newTestSession(t, archiveB)
	require.NoError(t, b2.Open(false))
	defer b2.Close()

	cContainsB, err := c.Contains(b2)
	require.NoError(t, err)
	assert.True(t, cContainsB)

	cContainsA, err := c.Contains(a2)
	require.NoError(t, err)
	assert.False(t, cContainsA)

	bContainsA, err := b2.Contains(a2)
	require.NoError(t, err)
	assert.False(t, bContainsA)

	bContainsC, err := b2.Contains(c)
	require.NoError(t, err)
	assert.False(t, bContainsC)

	require.NoError(t, c.Close())
}

// TestScenarioS5InvalidArchive checks that an archive lacking the
// control record is rejected and leaves no sandbox behind.
func TestScenarioS5InvalidArchive(t *testing.T) {
	freshBase(t)
	archive := filepath.Join(t.TempDir(), "bad.vfile")

	// Pack an empty folder with no control record at all.
	emptyDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(emptyDir, "file1.txt"), []byte("x"), 0o644))
	require.NoError(t, archivecodec.NewDefault().Pack(emptyDir, archive))

	s := newTestSession(t, archive)
	err := s.Open(true)
	require.Error(t, err)

	content, contentErr := s.GetContent()
	assert.Error(t, contentErr)
	assert.Empty(t, content)
	assert.NoDirExists(t, s.sandbox.Path)
}

// TestCleanupFailsWhenDirtySandboxLosesHistory mirrors S4: a dirty
// sandbox with fewer commits than the on-disk archive must not be
// silently discarded.
func TestCleanupFailsWhenDirtySandboxLosesHistory(t *testing.T) {
	freshBase(t)
	archive := filepath.Join(t.TempDir(), "project.vfile")

	// A closed archive with 3 user-visible versions.
	s := newTestSession(t, archive)
	require.NoError(t, s.Create())
	require.NoError(t, s.Open(true))
	commitN(t, s, 3)
	require.NoError(t, s.Close())

	// Simulate a crash from an earlier run: a dirty leftover sandbox,
	// placed at the exact deterministic path a fresh session computes,
	// whose history only reaches 2 versions.
	fresh := newTestSession(t, archive)
	dirtyPath := fresh.sandbox.Path
	require.NoError(t, os.MkdirAll(dirtyPath, 0o755))
	marker := filepath.Join(dirtyPath, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte(""), 0o644))
	rec, err := controlrecord.New("1.0", "")
	require.NoError(t, err)
	require.NoError(t, controlrecord.Write(dirtyPath, rec))

	store := history.NewGitStore()
	require.NoError(t, store.Init(dirtyPath)) // private root, version 0
	for i := 1; i <= 2; i++ {
		require.NoError(t, appendLine(marker, fmt.Sprintf("line %d", i)))
		require.NoError(t, store.AddAll())
		_, commitErr := store.Commit(fmt.Sprintf("v%d", i), "tester", "tester@example.com")
		require.NoError(t, commitErr)
	}
	require.NoError(t, store.Close())

	err = fresh.Cleanup()
	require.Error(t, err)
	assert.ErrorIs(t, err, vgaerr.ErrOverwriteWouldLoseHistory)
}

func TestSetTmpFolderTwiceFails(t *testing.T) {
	freshBase(t)
	err := SetTmpFolder(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, vgaerr.ErrTmpAlreadyInitialized)
}

func TestSecondOpenFailsWithAlreadyOpen(t *testing.T) {
	freshBase(t)
	archive := filepath.Join(t.TempDir(), "project.vfile")

	s1 := newTestSession(t, archive)
	require.NoError(t, s1.Create())
	require.NoError(t, s1.Open(true))
	defer s1.Close()

	s2 := newTestSession(t, archive)
	err := s2.Open(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, vgaerr.ErrAlreadyOpen)
}

func commitN(t *testing.T, s *Session, n int) {
	t.Helper()
	content, err := s.GetContent()
	require.NoError(t, err)
	marker := filepath.Join(content, "marker.txt")
	for i := 0; i < n; i++ {
		require.NoError(t, appendLine(marker, fmt.Sprintf("line %d", i)))
		require.NoError(t, s.Commit(fmt.Sprintf("commit %d", i)))
	}
}

func appendLine(path, line string) error {
	existing := ""
	if data, err := os.ReadFile(path); err == nil {
		existing = string(data)
	}
	return os.WriteFile(path, []byte(existing+line+"\n"), 0o644)
}

func countLines(s string) int {
	return len(splitLines(s))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}

func copyFileForTest(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
