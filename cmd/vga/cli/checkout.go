package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <archive> <n|first|previous|next|latest>",
		Short: "Open, check out a version, and close in one step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(err)
			}
			// checkoutLatest=false: the explicit checkout below decides the
			// target version instead of Open's own default navigation.
			if err := s.Open(false); err != nil {
				return newSilentError(err)
			}

			checkoutErr := dispatchCheckout(s, args[1])
			if closeErr := s.Close(); closeErr != nil && checkoutErr == nil {
				return newSilentError(closeErr)
			}
			if checkoutErr != nil {
				return newSilentError(checkoutErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked out %s\n", args[1])
			return nil
		},
	}
}
