package controlrecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miho/vgitarchive/internal/vgaerr"
)

// Literal S6 cases from the version-string grammar scenario.
func TestValidateVersion(t *testing.T) {
	valid := []string{"0.1", "1.2.3", "3.x", "x"}
	for _, v := range valid {
		assert.Truef(t, ValidateVersion(v), "expected %q to be valid", v)
	}

	invalid := []string{"1..2", "1.a", ""}
	for _, v := range invalid {
		assert.Falsef(t, ValidateVersion(v), "expected %q to be invalid", v)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rec, err := New("1.0", "a versioned document")
	require.NoError(t, err)

	require.NoError(t, Write(dir, rec))
	require.True(t, Exists(dir))

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, rec.Version, got.Version)
	assert.Equal(t, rec.Description, got.Description)
}

func TestReadMissingIsInvalidArchive(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, vgaerr.ErrInvalidArchive)
}

func TestNewRejectsMalformedVersion(t *testing.T) {
	_, err := New("1..2", "bad")
	require.Error(t, err)
}
