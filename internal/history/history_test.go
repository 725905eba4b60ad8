package history

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func TestInitCreatesPrivateRootCommit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file1.txt", "")

	store := NewGitStore()
	require.NoError(t, store.Init(root))
	defer store.Close()

	commits, err := store.ListCommitsTopoReversed()
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "root", commits[0].Message)
}

func TestCommitStageAndReadBack(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file1.txt", "")

	store := NewGitStore()
	require.NoError(t, store.Init(root))
	defer store.Close()

	writeFile(t, root, "file1.txt", "hello\n")
	require.NoError(t, store.AddAll())
	id, err := store.Commit("first", "tester", "tester@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	commits, err := store.ListCommitsTopoReversed()
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "first", commits[1].Message)

	entries, err := store.ReadTree(id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file1.txt", entries[0].Path)

	var buf bytes.Buffer
	require.NoError(t, store.ReadBlob(entries[0].BlobID, &buf))
	assert.Equal(t, "hello\n", buf.String())
}

func TestCommitWithNoChangesFails(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file1.txt", "")

	store := NewGitStore()
	require.NoError(t, store.Init(root))
	defer store.Close()

	_, err := store.Commit("nothing changed", "tester", "tester@example.com")
	require.Error(t, err)
}

func TestRmStagesDeletion(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file1.txt", "a")
	writeFile(t, root, "file2.txt", "b")

	store := NewGitStore()
	require.NoError(t, store.Init(root))
	defer store.Close()

	require.NoError(t, os.Remove(filepath.Join(root, "file2.txt")))
	status, err := store.Status()
	require.NoError(t, err)
	assert.Contains(t, status.Missing, "file2.txt")

	require.NoError(t, store.Rm("file2.txt"))
	require.NoError(t, store.AddAll())
	id, err := store.Commit("remove file2", "tester", "tester@example.com")
	require.NoError(t, err)

	entries, err := store.ReadTree(id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file1.txt", entries[0].Path)
}
