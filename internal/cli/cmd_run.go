package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beraterkanelcelik/home-work-sportradar-sub001/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Submit a research goal and stream its events until it settles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.close()

		sessionID, _ := cmd.Flags().GetString("session")
		owner, _ := cmd.Flags().GetString("owner")
		autoApprove, _ := cmd.Flags().GetBool("approve-all")
		if sessionID == "" {
			sessionID = workflow.NewSessionID()
		}

		instanceID, err := app.engine.Submit(cmd.Context(), sessionID, owner, args[0])
		if err != nil {
			return err
		}
		logger.Info("workflow submitted", "session_id", sessionID, "instance_id", instanceID)

		return streamFrom(cmd.Context(), app, sessionID, -1, autoApprove)
	},
}

func init() {
	runCmd.Flags().String("session", "", "session id (generated when empty)")
	runCmd.Flags().String("owner", "operator", "owner id recorded on the session")
	runCmd.Flags().Bool("approve-all", false, "resolve every gate as approve without prompting")
	runCmd.Flags().String("script", "", "YAML file of scripted executor capabilities")
	_ = viper.BindPFlag("script", runCmd.Flags().Lookup("script"))
	rootCmd.AddCommand(runCmd)
}

// streamFrom prints the session's event stream and resolves gates as
// proposals arrive, either automatically or by prompting the operator.
func streamFrom(ctx context.Context, app *app, sessionID string, fromSeq int64, autoApprove bool) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := app.relay.Subscribe(streamCtx, sessionID, fromSeq)
	if err != nil {
		return err
	}
	go app.gates.Run(streamCtx, app.cfg.GateSweepInterval)
	go func() {
		app.engine.Wait(sessionID)
		cancel()
	}()

	enc := json.NewEncoder(os.Stdout)
	for event := range events {
		if err := enc.Encode(event); err != nil {
			return err
		}
		gateID, ok := proposalGateID(event)
		if !ok {
			continue
		}
		res := workflow.Resolution{Action: workflow.ResolveApprove, Actor: "operator"}
		if !autoApprove {
			res, err = promptResolution(event.Kind)
			if err != nil {
				return err
			}
		}
		outcome, _, err := app.engine.ResolveGate(sessionID, gateID, res)
		if err != nil {
			logger.Warn("gate resolution rejected", "gate_id", gateID, "outcome", string(outcome), "error", err)
		}
	}

	session, err := app.store.LoadSession(sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session %s finished in state %s\n", sessionID, session.State)
	return nil
}

func proposalGateID(event workflow.Event) (string, bool) {
	decoded, err := workflow.DecodePayload(event)
	if err != nil {
		return "", false
	}
	switch payload := decoded.(type) {
	case *workflow.PlanProposalPayload:
		return payload.GateID, true
	case *workflow.ToolProposalPayload:
		return payload.GateID, true
	case *workflow.PlayerPreviewPayload:
		return payload.GateID, true
	default:
		return "", false
	}
}

func promptResolution(kind workflow.EventKind) (workflow.Resolution, error) {
	fmt.Fprintf(os.Stderr, "%s pending: [a]pprove / [r]eject / [e]dit feedback? ", kind)
	var choice string
	if _, err := fmt.Fscanln(os.Stdin, &choice); err != nil {
		return workflow.Resolution{}, fmt.Errorf("read resolution: %w", err)
	}
	res := workflow.Resolution{Actor: "operator"}
	switch choice {
	case "a", "approve":
		res.Action = workflow.ResolveApprove
	case "r", "reject":
		res.Action = workflow.ResolveReject
	case "e", "edit":
		fmt.Fprint(os.Stderr, "feedback: ")
		var feedback string
		if _, err := fmt.Fscanln(os.Stdin, &feedback); err != nil {
			return workflow.Resolution{}, fmt.Errorf("read feedback: %w", err)
		}
		res.Action = workflow.ResolveEditContent
		res.Feedback = feedback
	default:
		return workflow.Resolution{}, fmt.Errorf("unknown choice %q", choice)
	}
	return res, nil
}
