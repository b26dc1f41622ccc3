package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a suspended session",
	Long: `cancel closes a suspended session: its pending gate (if any) is rejected
on record, a terminal error event is appended, and the session settles in
the cancelled state instead of ever being resumed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()
		return cancelSession(app, args[0])
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func cancelSession(app *app, sessionID string) error {
	session, err := app.store.LoadSession(sessionID)
	if err != nil {
		return err
	}
	if workflow.IsTerminal(session.State) {
		return fmt.Errorf("session %s is already %s", sessionID, session.State)
	}
	if err := workflow.ValidateStateTransition(session.State, workflow.StateCancelled); err != nil {
		return err
	}

	if pending, ok, err := app.store.LoadPendingGate(sessionID); err != nil {
		return err
	} else if ok {
		if _, _, err := app.gates.Resolve(pending.GateID, workflow.Resolution{
			Action:   workflow.ResolveReject,
			Actor:    "operator",
			Feedback: "cancelled",
		}); err != nil {
			return err
		}
	}

	if _, err := app.log.Append(sessionID, workflow.EventError, &workflow.ErrorPayload{
		Reason: workflow.ReasonCancelled,
		Detail: "cancelled by operator",
	}); err != nil {
		return err
	}

	session.State = workflow.StateCancelled
	session.ActiveInstance = ""
	session.UpdatedAt = time.Now().UTC()
	if err := app.store.UpsertSession(session); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "session %s cancelled\n", sessionID)
	return nil
}
