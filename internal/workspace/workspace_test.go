package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTmpFolderOnlyOnce(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	root := t.TempDir()
	require.NoError(t, SetTmpFolder(root))

	err := SetTmpFolder(t.TempDir())
	require.Error(t, err)
}

func TestAllocatePicksSmallestFreeIndex(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	root := t.TempDir()
	require.NoError(t, SetTmpFolder(root))
	b, err := CurrentBase()
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "project.vfile")

	sb0, err := b.Allocate(archive)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(sb0.Path, 0o755))

	sb1, err := b.Allocate(archive)
	require.NoError(t, err)
	assert.NotEqual(t, sb0.Path, sb1.Path)
	assert.Contains(t, sb1.Path, ".vtmp1")
}

func TestRotateGenerationsPreservesCrashedSandboxWithinSameProcess(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	root := t.TempDir()
	require.NoError(t, SetTmpFolder(root))
	b, err := CurrentBase()
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "project.vfile")
	sb, err := b.Allocate(archive)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(sb.Path, 0o755))

	// Simulate the deterministic lookup that open() performs after a
	// crash: the same process, no restart, finds the leftover sandbox
	// still in generation 0.
	existing, err := b.AllocateExisting(archive, 0)
	require.NoError(t, err)
	assert.Equal(t, sb.Path, existing.Path)
	assert.True(t, existing.Exists())
}

func TestAllocateRandomProducesDistinctSandboxes(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	root := t.TempDir()
	require.NoError(t, SetTmpFolder(root))
	b, err := CurrentBase()
	require.NoError(t, err)

	archive := filepath.Join(t.TempDir(), "project.vfile")
	sb1, err := b.AllocateRandom(archive)
	require.NoError(t, err)
	sb2, err := b.AllocateRandom(archive)
	require.NoError(t, err)
	assert.NotEqual(t, sb1.Path, sb2.Path)
}
