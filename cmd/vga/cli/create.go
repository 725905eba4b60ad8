package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <archive>",
		Short: "Create a new, empty versioned archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(fmt.Errorf("create %s: %w", args[0], err))
			}
			if err := s.Create(); err != nil {
				return newSilentError(fmt.Errorf("create %s: %w", args[0], err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			return nil
		},
	}
}
