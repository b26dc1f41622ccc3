package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Replay a session's persisted event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		fromSeq, _ := cmd.Flags().GetInt64("from-seq")
		events, err := app.log.Read(args[0], fromSeq)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions and their workflow states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		sessions, err := app.store.ListSessions()
		if err != nil {
			return err
		}
		for _, session := range sessions {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n",
				session.SessionID, session.State, session.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int64("from-seq", 0, "first sequence number to print")
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(sessionsCmd)
}
