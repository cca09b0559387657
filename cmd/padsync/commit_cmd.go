package main

import (
	"fmt"

	"github.com/openmined/padsync/internal/padsdk"
	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCommitCmd())
}

func newCommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Snapshot the notes directory into git now",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")

			sdk, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			resp, err := sdk.Git.Commit(cmd.Context(), message)
			switch {
			case padsdk.IsCode(err, api.CodeGitNoChanges):
				_, err = fmt.Fprintln(cmd.OutOrStdout(), gray.Render("nothing to commit"))
				return err
			case padsdk.IsCode(err, api.CodeGitConflict):
				conflicts, _ := sdk.Git.Conflicts(cmd.Context())
				fmt.Fprintln(cmd.ErrOrStderr(), red.Render("unresolved conflicts:"))
				for _, f := range conflicts {
					fmt.Fprintln(cmd.ErrOrStderr(), "  "+f)
				}
				return err
			case err != nil:
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				green.Render("committed"),
				cyan.Render(resp.Commit.ID),
				resp.Commit.Message,
			)
			return err
		},
	}
	cmd.Flags().StringP("message", "m", "", "commit message")
	return cmd
}
