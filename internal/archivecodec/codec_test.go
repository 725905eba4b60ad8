package archivecodec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file1.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "file2.txt"), []byte("world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.class"), []byte("bin"), 0o644))
}

func TestDefaultPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src)

	dest := filepath.Join(t.TempDir(), "archive.zip")
	codec := NewDefault()
	require.NoError(t, codec.Pack(src, dest, ".class"))

	out := t.TempDir()
	require.NoError(t, codec.Unpack(dest, out))

	data, err := os.ReadFile(filepath.Join(out, "sub", "file2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	assert.NoFileExists(t, filepath.Join(out, "skip.class"))
	assert.Equal(t, "ZIP", codec.Identifier())
}

func TestStarryPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src)

	dest := filepath.Join(t.TempDir(), "archive.zip")
	codec := NewStarry()
	require.NoError(t, codec.Pack(src, dest, ".class"))

	out := t.TempDir()
	require.NoError(t, codec.Unpack(dest, out))

	data, err := os.ReadFile(filepath.Join(out, "file1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoFileExists(t, filepath.Join(out, "skip.class"))
	assert.Equal(t, "ZIP-STARRY", codec.Identifier())
}

func TestRegistryLookup(t *testing.T) {
	codec, ok := Lookup("ZIP")
	require.True(t, ok)
	assert.Equal(t, "ZIP", codec.Identifier())

	_, ok = Lookup("NOPE")
	assert.False(t, ok)
}
