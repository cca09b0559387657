package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/openmined/padsync/internal/padmsg"
	"github.com/openmined/padsync/internal/padsdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream lock and file change events from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			msgpack, _ := cmd.Flags().GetBool("msgpack")

			sdk, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if msgpack {
				sdk.Events.UseMsgPack()
			}

			out := cmd.OutOrStdout()
			onConnect := func(s *padsdk.EventStream) {
				fmt.Fprintf(out, "%s connected to %s as %s\n",
					green.Render("●"), sdk.BaseURL(), cyan.Render(shortID(s.SessionID())))
			}
			return sdk.Events.Listen(cmd.Context(), onConnect, func(msg *padmsg.Message) {
				fmt.Fprintln(out, renderEvent(time.Now(), msg))
			})
		},
	}
	cmd.Flags().Bool("msgpack", false, "use binary msgpack frames")
	return cmd
}

// renderEvent formats one socket message as a single terminal line.
func renderEvent(at time.Time, msg *padmsg.Message) string {
	ts := gray.Render(at.Format("15:04:05"))
	typ := fmt.Sprintf("%-13s", msg.Type)

	switch d := msg.Data.(type) {
	case *padmsg.FileLocked:
		style := yellow
		if msg.Type == padmsg.MsgLockDenied {
			style = red
		}
		return fmt.Sprintf("%s %s %s %s", ts, style.Render(typ), d.Path,
			lightGray.Render(fmt.Sprintf("by %s (%s)", shortID(d.Holder), d.Kind)))

	case *padmsg.FileEvent:
		style := cyan
		switch msg.Type {
		case padmsg.MsgFileUnlocked:
			style = green
		case padmsg.MsgFileDeleted:
			style = red
		}
		return fmt.Sprintf("%s %s %s", ts, style.Render(typ), d.Path)

	case *padmsg.FileRenamed:
		return fmt.Sprintf("%s %s %s -> %s", ts, cyan.Render(typ), d.From, d.To)

	case *padmsg.Conflict:
		return fmt.Sprintf("%s %s %s", ts, red.Render(typ), strings.Join(d.Files, ", "))

	case *padmsg.SaveStatus:
		detail := d.State
		if d.Error != "" {
			detail += ": " + d.Error
		}
		return fmt.Sprintf("%s %s %s %s", ts, lightGray.Render(typ), d.Path, lightGray.Render(detail))

	case *padmsg.Error:
		return fmt.Sprintf("%s %s %d %s %s", ts, red.Render(typ), d.Code, d.Path, d.Message)

	default:
		return fmt.Sprintf("%s %s", ts, lightGray.Render(typ))
	}
}
