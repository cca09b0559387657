package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/padsync/internal/padsdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			sdk, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			st, err := sdk.Status(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), red.Render("daemon not reachable at "+sdk.BaseURL()))
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			}

			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the raw status as json")
	return cmd
}

func printStatus(w io.Writer, st *padsdk.StatusResponse) {
	fmt.Fprintf(w, "%s %s\n", green.Render("●"), bold.Render("PadSync "+st.Version))
	fmt.Fprintf(w, "  %-11s %s\n", gray.Render("data dir"), st.DataDir)
	fmt.Fprintf(w, "  %-11s %s (%s)\n", gray.Render("started"), humanize.Time(st.StartedAt), st.Uptime)
	fmt.Fprintf(w, "  %-11s %d\n", gray.Render("locks"), st.Locks)
	fmt.Fprintf(w, "  %-11s %s\n", gray.Render("versioning"), st.Versioning)
	fmt.Fprintf(w, "  %-11s %d\n", gray.Render("sessions"), len(st.Sessions))

	for _, s := range st.Sessions {
		doc := s.OpenPath
		if doc == "" {
			doc = lightGray.Render("(no document)")
		} else if s.SaveState != "" {
			doc += " " + lightGray.Render("["+s.SaveState+"]")
		}
		fmt.Fprintf(w, "    %s %s %s %s\n",
			cyan.Render(shortID(s.ID)),
			s.IPAddr,
			gray.Render(humanize.Time(s.ConnectedAt)),
			doc,
		)
	}
}
