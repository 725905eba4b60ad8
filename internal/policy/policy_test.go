package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusionSetMatches(t *testing.T) {
	excl := New(".versioned-file-info.xml").WithSuffixes(".class")

	assert.True(t, excl.Matches(".git"))
	assert.True(t, excl.Matches(".git/objects/ab/cd"))
	assert.True(t, excl.Matches(".versioned-file-info.xml"))
	assert.True(t, excl.Matches("build/Foo.class"))
	assert.False(t, excl.Matches("file1.txt"))
}

func TestCleanRemovesOnlyNonExcluded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".versioned-file-info.xml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file1.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "file2.txt"), []byte("hi"), 0o644))

	excl := New(".versioned-file-info.xml")
	require.NoError(t, Clean(root, excl))

	assert.DirExists(t, filepath.Join(root, ".git"))
	assert.FileExists(t, filepath.Join(root, ".versioned-file-info.xml"))
	assert.NoFileExists(t, filepath.Join(root, "file1.txt"))
	assert.NoDirExists(t, filepath.Join(root, "sub"))
}

func TestDefaultPackExcludesUnionsExtraSuffixesOnly(t *testing.T) {
	extra := ExclusionSet{Paths: []string{"custom.bin", HistoryDirName}, Suffixes: []string{".tmp"}}
	out := DefaultPackExcludes(extra)

	assert.Contains(t, out, ClassSuffix)
	assert.Contains(t, out, ".tmp")
	// Paths never leak into the pack-exclude list: the history store and
	// the control record must end up inside the packed archive.
	assert.NotContains(t, out, HistoryDirName)
	assert.NotContains(t, out, "custom.bin")
	assert.NotContains(t, out, ".versioned-file-info.xml")
}
