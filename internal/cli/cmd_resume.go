package cli

import (
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Reconstruct a suspended session from its latest checkpoint and continue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		sessionID := args[0]
		autoApprove, _ := cmd.Flags().GetBool("approve-all")

		instanceID, err := app.engine.Resume(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		logger.Info("workflow resumed", "session_id", sessionID, "instance_id", instanceID)

		fromSeq, _ := cmd.Flags().GetInt64("from-seq")
		return streamFrom(cmd.Context(), app, sessionID, fromSeq, autoApprove)
	},
}

func init() {
	resumeCmd.Flags().Bool("approve-all", false, "resolve every gate as approve without prompting")
	resumeCmd.Flags().Int64("from-seq", -1, "replay events with seq greater than this before the live tail")
	rootCmd.AddCommand(resumeCmd)
}
