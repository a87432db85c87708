package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/deps"
	"lectern/internal/media"
	"lectern/internal/orchestrator"
	"lectern/internal/session"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <url|file>",
		Short: "Extract slides from a lecture video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := strings.TrimSpace(args[0])
			_, isLocal := media.ResolveLocal(source)
			if err := preflight(cfg, !isLocal); err != nil {
				return err
			}

			orch, _, closeStore, err := ctx.newOrchestrator()
			if err != nil {
				return err
			}
			defer closeStore()

			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			sess, err := orch.StartSession(runCtx, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s created\n", shortID(sess.ID))

			return driveSession(cmd, orch, runCtx, sess)
		},
	}
}

// driveSession runs the session with a progress bar when the output is a
// terminal and reports the outcome. A failed session yields a non-nil error
// so the process exits non-zero.
func driveSession(cmd *cobra.Command, orch *orchestrator.Orchestrator, runCtx context.Context, sess *session.Session) error {
	finish := attachProgress(cmd, orch)
	proj, err := orch.Run(runCtx, sess)
	finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch proj.State.Status {
	case session.StatusCompleted:
		fmt.Fprintf(out, "Extracted %d slides (%d duplicates folded, %d warnings)\n",
			len(proj.Slides), proj.Duplicates, proj.Warnings())
		fmt.Fprintf(out, "Report: %s\n", proj.ReportPath)
		return nil
	case session.StatusFailed:
		return fmt.Errorf("session %s failed: %s", shortID(sess.ID), proj.State.FailureReason)
	default:
		return fmt.Errorf("session %s stopped in %s; resume with `lectern resume %s`",
			shortID(sess.ID), proj.State.Status, sess.ID)
	}
}

// preflight verifies required external binaries before any session work.
func preflight(cfg *config.Config, needDownloader bool) error {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	var missing []string
	for _, name := range deps.MissingRequired(statuses) {
		if !needDownloader && name == "yt-dlp" {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tools: %s (run `lectern deps` for details)",
			strings.Join(missing, ", "))
	}
	return nil
}
