package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lectern/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List extraction sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := parseStatusFilter(statusFlag)
			if err != nil {
				return err
			}
			sessions, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					shortID(sess.ID),
					titleOrSource(sess),
					string(sess.Status),
					strconv.Itoa(sess.SlideCount),
					strconv.Itoa(sess.WarningCount),
					formatTimestamp(sess.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "TITLE", "STATUS", "SLIDES", "WARN", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (comma separated)")
	return cmd
}

func parseStatusFilter(value string) ([]session.Status, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var statuses []session.Status
	for _, part := range strings.Split(value, ",") {
		status, ok := session.ParseStatus(part)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(part))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func titleOrSource(sess *session.Session) string {
	if title := strings.TrimSpace(sess.Title); title != "" {
		return truncate(title, 40)
	}
	return truncate(sess.SourceURL, 40)
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
