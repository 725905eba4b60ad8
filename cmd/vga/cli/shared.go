package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/miho/vgitarchive/internal/archivecodec"
	"github.com/miho/vgitarchive/internal/session"
	"github.com/miho/vgitarchive/internal/vgaconfig"
	"github.com/miho/vgitarchive/internal/workspace"
	"github.com/miho/vgitarchive/logging"
)

// openSession loads .vgitarchive/settings.json (falling back to
// vgaconfig.Defaults() when absent), applies the --tmp and --codec
// persistent flags on top of it, and constructs a closed Session
// against archive. A flag value always wins over the settings file;
// the settings file always wins over the library defaults.
func openSession(cmd *cobra.Command, archive string) (*session.Session, error) {
	settings, err := vgaconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("vga: %w", err)
	}

	if os.Getenv(logging.LevelEnvVar) == "" && settings.LogLevel != "" {
		logging.SetLevel(logging.ParseLevel(settings.LogLevel))
	}

	root := settings.SandboxBase
	if tmp, _ := cmd.Flags().GetString("tmp"); tmp != "" {
		root = tmp
	}
	if root != "" {
		lockDelay := time.Duration(settings.LockRetryDelayMillis) * time.Millisecond
		if err := workspace.SetTmpFolderWithOptions(root, settings.MaxBackupGenerations, settings.LockRetryAttempts, lockDelay); err != nil {
			return nil, fmt.Errorf("vga: %w", err)
		}
	}

	codecID := settings.DefaultCodec
	if cmd.Flags().Changed("codec") {
		codecID, _ = cmd.Flags().GetString("codec")
	}
	codec, ok := archivecodec.Lookup(codecID)
	if !ok {
		codec = archivecodec.NewDefault()
	}

	return session.New(archive, codec, session.Options{FlushCommits: true})
}
