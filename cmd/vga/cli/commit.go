package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit <archive>",
		Short: "Open, stage all changes, commit, and close in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(err)
			}
			if err := s.Open(true); err != nil {
				return newSilentError(err)
			}

			commitErr := s.Commit(message)
			if closeErr := s.Close(); closeErr != nil && commitErr == nil {
				return newSilentError(closeErr)
			}
			if commitErr != nil {
				return newSilentError(commitErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "committed")
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}
