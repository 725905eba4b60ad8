// Package cli wires the vga cobra command tree: a silent-errors root
// command, a version subcommand reporting runtime.Version(), and
// subcommands registered on the root in NewRootCmd.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information, settable at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// SilentError marks an error whose message has already been printed by
// the command that returned it, so main's top-level handler doesn't
// print it a second time.
type SilentError struct {
	Err error
}

func (e *SilentError) Error() string { return e.Err.Error() }
func (e *SilentError) Unwrap() error { return e.Err }

func newSilentError(err error) error {
	if err == nil {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return &SilentError{Err: err}
}

// NewRootCmd builds the vga command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vga",
		Short:         "VGitArchive: a versioned single-file document",
		Long:          "vga treats a single archive file on disk as a directory with a full revision history.",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("codec", "ZIP", "archive codec identifier (ZIP or ZIP-STARRY)")
	cmd.PersistentFlags().String("tmp", "", "sandbox base directory (default: OS temp dir)")

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newOpenCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newCheckoutCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vga %s (%s)\n", Version, Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
