// Package vgaconfig holds the process-wide tunables the session manager
// and workspace allocator read: a JSON-backed settings file with a
// typed struct, defaults applied on load, and a local-override file
// layered on top.
//
// The library packages (session, workspace) never read this file
// themselves -- they take an explicit Options/Base argument instead, so
// an embedding application is never forced to adopt file-based config.
// vgaconfig exists for the cmd/vga CLI wrapper and for any other
// front-end that wants a settings-file convention.
package vgaconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SettingsFile is the default settings path, relative to the directory
// the CLI wrapper is invoked from.
const SettingsFile = ".vgitarchive/settings.json"

// SettingsLocalFile overrides SettingsFile with values not meant to be
// committed (e.g. a developer's local sandbox base).
const SettingsLocalFile = ".vgitarchive/settings.local.json"

// Settings is the .vgitarchive/settings.json configuration: the
// process-wide tunables behind SetTmpFolder, the lock retry loop, the
// backup-generation count, and the default codec/author fallback.
type Settings struct {
	// SandboxBase overrides the OS temp directory as the workspace
	// allocator's sandbox base (session.SetTmpFolder). Empty means "use
	// os.TempDir()".
	SandboxBase string `json:"sandbox_base,omitempty"`

	// LockRetryAttempts and LockRetryDelayMillis bound the advisory
	// flock acquisition loop in internal/workspace.
	LockRetryAttempts    int `json:"lock_retry_attempts,omitempty"`
	LockRetryDelayMillis int `json:"lock_retry_delay_millis,omitempty"`

	// MaxBackupGenerations is the number of rotated sandbox-base
	// generations the workspace allocator keeps.
	MaxBackupGenerations int `json:"max_backup_generations,omitempty"`

	// DefaultCodec selects the registered archivecodec.Codec identifier
	// new sessions use when the caller doesn't pass one explicitly.
	DefaultCodec string `json:"default_codec,omitempty"`

	// AuthorName and AuthorEmail are loaded and saved with the other
	// settings. No commit path in this module reads them: commit authors
	// come from the OS user.
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	// VGA_LOG_LEVEL takes precedence when set.
	LogLevel string `json:"log_level,omitempty"`
}

// Defaults returns the settings used when no settings file is present.
func Defaults() Settings {
	return Settings{
		LockRetryAttempts:    10,
		LockRetryDelayMillis: 300,
		MaxBackupGenerations: 5,
		DefaultCodec:         "ZIP",
	}
}

// Load reads SettingsFile, then layers SettingsLocalFile on top if
// present, returning Defaults() if neither file exists.
func Load() (Settings, error) {
	settings := Defaults()

	base, err := loadFile(SettingsFile)
	if err != nil {
		return Settings{}, fmt.Errorf("vgaconfig: %w", err)
	}
	if base != nil {
		applyNonZero(&settings, *base)
	}

	local, err := loadFile(SettingsLocalFile)
	if err != nil {
		return Settings{}, fmt.Errorf("vgaconfig: local override: %w", err)
	}
	if local != nil {
		applyNonZero(&settings, *local)
	}

	return settings, nil
}

// Save writes settings to SettingsFile, creating its parent directory if
// needed.
func Save(settings Settings) error {
	return saveFile(SettingsFile, settings)
}

// SaveLocal writes settings to SettingsLocalFile.
func SaveLocal(settings Settings) error {
	return saveFile(SettingsLocalFile, settings)
}

func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &s, nil
}

func saveFile(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("vgaconfig: creating settings directory: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("vgaconfig: marshaling settings: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vgaconfig: writing %s: %w", path, err)
	}
	return nil
}

// applyNonZero overlays every non-zero field of override onto base.
func applyNonZero(base *Settings, override Settings) {
	if override.SandboxBase != "" {
		base.SandboxBase = override.SandboxBase
	}
	if override.LockRetryAttempts != 0 {
		base.LockRetryAttempts = override.LockRetryAttempts
	}
	if override.LockRetryDelayMillis != 0 {
		base.LockRetryDelayMillis = override.LockRetryDelayMillis
	}
	if override.MaxBackupGenerations != 0 {
		base.MaxBackupGenerations = override.MaxBackupGenerations
	}
	if override.DefaultCodec != "" {
		base.DefaultCodec = override.DefaultCodec
	}
	if override.AuthorName != "" {
		base.AuthorName = override.AuthorName
	}
	if override.AuthorEmail != "" {
		base.AuthorEmail = override.AuthorEmail
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
}
