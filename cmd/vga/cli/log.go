package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/miho/vgitarchive/internal/session"
)

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <archive>",
		Short: "Open, list versions oldest-first, and close in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(err)
			}
			if err := s.Open(false); err != nil {
				return newSilentError(err)
			}

			printVersions(cmd.OutOrStdout(), s)
			return newSilentError(s.Close())
		},
	}
}

func printVersions(out io.Writer, s *session.Session) {
	versions, err := s.GetVersions()
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if len(versions) == 0 {
		fmt.Fprintln(out, "no versions yet")
		return
	}
	for i, c := range versions {
		fmt.Fprintf(out, "%d  %s  %s  %s  %s\n", i+1, c.ID[:min(10, len(c.ID))], humanize.Time(c.When), c.Author, c.Message)
	}
}
