package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/openmined/padsync/internal/locks"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLocksCmd())
}

func newLocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List documents currently locked by a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			resp, err := sdk.Locks(cmd.Context())
			if err != nil {
				return err
			}

			printLocks(cmd.OutOrStdout(), resp.Locks)
			return nil
		},
	}
}

func printLocks(w io.Writer, list []locks.Record) {
	if len(list) == 0 {
		fmt.Fprintln(w, gray.Render("no locks held"))
		return
	}
	for _, rec := range list {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			bold.Render(rec.Path),
			cyan.Render(shortID(rec.Holder)),
			yellow.Render(string(rec.Kind)),
			gray.Render(humanize.Time(rec.AcquiredAt)),
		)
	}
}
