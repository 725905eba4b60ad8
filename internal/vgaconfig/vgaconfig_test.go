package vgaconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadReturnsDefaultsWhenNoFilesExist(t *testing.T) {
	chdir(t, t.TempDir())

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), settings)
}

func TestLoadLayersBaseThenLocal(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, Save(Settings{DefaultCodec: "ZIP-STARRY", MaxBackupGenerations: 3}))
	require.NoError(t, SaveLocal(Settings{MaxBackupGenerations: 7}))

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ZIP-STARRY", settings.DefaultCodec)
	assert.Equal(t, 7, settings.MaxBackupGenerations)
	assert.Equal(t, Defaults().LockRetryAttempts, settings.LockRetryAttempts)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.MkdirAll(filepath.Dir(SettingsFile), 0o755))
	require.NoError(t, os.WriteFile(SettingsFile, []byte("{not json"), 0o644))

	_, err := Load()
	require.Error(t, err)
}
