package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <gate-id>",
	Short: "Apply a human decision to a pending approval gate",
	Long: `resolve records a decision on a gate. Resolution is idempotent: a gate
already resolved reports the decision on record instead of erroring. The
suspended session picks the decision up on its next resume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		gateID := args[0]
		action, _ := cmd.Flags().GetString("action")
		feedback, _ := cmd.Flags().GetString("feedback")
		actor, _ := cmd.Flags().GetString("actor")

		parsed, err := workflow.ParseResolutionAction(action)
		if err != nil {
			return err
		}
		outcome, onRecord, err := app.gates.Resolve(gateID, workflow.Resolution{
			Action:   parsed,
			Feedback: feedback,
			Actor:    actor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "outcome: %s\nresolution_on_record: %s", outcome, onRecord.Action)
		if onRecord.Feedback != "" {
			fmt.Fprintf(os.Stdout, " (%s)", onRecord.Feedback)
		}
		fmt.Fprintln(os.Stdout)
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("action", "approve", "approve, reject, edit_wording or edit_content")
	resolveCmd.Flags().String("feedback", "", "feedback text carried with the resolution")
	resolveCmd.Flags().String("actor", "operator", "who made the decision")
	rootCmd.AddCommand(resolveCmd)
}
