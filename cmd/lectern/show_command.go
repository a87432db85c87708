package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"lectern/internal/session"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show details for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sess == nil {
				return fmt.Errorf("session %s not found", args[0])
			}

			rows := [][]string{
				{"ID", sess.ID},
				{"Source", sess.SourceURL},
				{"Title", sess.Title},
				{"Status", string(sess.Status)},
				{"Progress", fmt.Sprintf("%.0f%% (%s)", sess.ProgressPct, sess.ProgressStage)},
				{"Slides", strconv.Itoa(sess.SlideCount)},
				{"Warnings", strconv.Itoa(sess.WarningCount)},
				{"Created", formatTimestamp(sess.CreatedAt)},
				{"Updated", formatTimestamp(sess.UpdatedAt)},
			}
			if sess.CompletedAt != nil {
				rows = append(rows, []string{"Completed", formatTimestamp(*sess.CompletedAt)})
			}
			if sess.Status == session.StatusFailed {
				rows = append(rows, []string{"Failure", sess.FailureReason})
			}
			if sess.ReportPath != "" {
				rows = append(rows, []string{"Report", sess.ReportPath})
			}
			rows = append(rows, []string{"Event log", sess.LogPath})

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"FIELD", "VALUE"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}
