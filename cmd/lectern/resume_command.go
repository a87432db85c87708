package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/session"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume an interrupted extraction session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, store, closeStore, err := ctx.newOrchestrator()
			if err != nil {
				return err
			}
			defer closeStore()

			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, err := store.GetByID(runCtx, args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			switch sess.Status {
			case session.StatusCompleted:
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s already completed (report: %s)\n",
					shortID(sess.ID), sess.ReportPath)
				return nil
			case session.StatusFailed:
				return fmt.Errorf("session %s failed (%s) and cannot be resumed",
					shortID(sess.ID), sess.FailureReason)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Resuming session %s from %s\n", shortID(sess.ID), sess.Status)
			return driveSession(cmd, orch, runCtx, sess)
		},
	}
}
