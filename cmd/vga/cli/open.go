package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miho/vgitarchive/internal/session"
)

// newOpenCmd opens an archive and keeps the session alive for a small
// interactive REPL, since the session manager's working area is only
// meaningful for the lifetime of one attached process. Each line
// dispatches to one Session method; "exit"/EOF/Ctrl-C closes the
// session (flush + sandbox removal) before the process exits.
func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <archive>",
		Short: "Open an archive and start an interactive session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, args[0])
			if err != nil {
				return newSilentError(fmt.Errorf("open %s: %w", args[0], err))
			}
			if err := s.Open(true); err != nil {
				return newSilentError(fmt.Errorf("open %s: %w", args[0], err))
			}

			content, _ := s.GetContent()
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s\nworking area: %s\ntype \"help\" for commands, \"exit\" to close\n", args[0], content)

			runREPL(cmd, s)
			return nil
		},
	}
}

func runREPL(cmd *cobra.Command, s *session.Session) {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	ctx := cmd.Context()

	for {
		fmt.Fprint(out, "vga> ")
		if ctx.Err() != nil || !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		cmdName := fields[0]
		var rest string
		if len(fields) > 1 {
			rest = fields[1]
		}

		switch cmdName {
		case "exit", "quit":
			if err := s.Close(); err != nil {
				fmt.Fprintln(out, "error closing:", err)
			}
			return
		case "help":
			fmt.Fprintln(out, "commands: status, commit <message>, checkout <n|first|prev|next|latest>, versions, flush, exit")
		case "status":
			printStatus(out, s)
		case "commit":
			if err := s.Commit(rest); err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			fmt.Fprintln(out, "committed")
		case "checkout":
			if err := dispatchCheckout(s, rest); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		case "versions", "log":
			printVersions(out, s)
		case "flush":
			if err := s.Flush(); err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			fmt.Fprintln(out, "flushed")
		default:
			fmt.Fprintf(out, "unknown command %q; type \"help\"\n", cmdName)
		}
	}

	if err := s.Close(); err != nil {
		fmt.Fprintln(out, "error closing:", err)
	}
}

func dispatchCheckout(s *session.Session, arg string) error {
	switch arg {
	case "first":
		return s.CheckoutFirstVersion()
	case "prev", "previous":
		return s.CheckoutPreviousVersion()
	case "next":
		return s.CheckoutNextVersion()
	case "latest", "":
		return s.CheckoutLatestVersion()
	default:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid version %q", arg)
		}
		return s.CheckoutVersion(n)
	}
}
