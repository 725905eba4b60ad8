package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/miho/vgitarchive/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <archive>",
		Short: "Open, report uncommitted changes and archive size, and close in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if info, err := os.Stat(args[0]); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "archive size: %s\n", humanize.Bytes(uint64(info.Size())))
			}

			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(err)
			}
			if err := s.Open(false); err != nil {
				return newSilentError(err)
			}

			printStatus(cmd.OutOrStdout(), s)
			return newSilentError(s.Close())
		},
	}
}

func printStatus(out io.Writer, s *session.Session) {
	changes, err := s.GetUncommittedChanges()
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if len(changes) == 0 {
		fmt.Fprintln(out, "clean")
		return
	}
	for _, p := range changes {
		fmt.Fprintln(out, " ", p)
	}
}
