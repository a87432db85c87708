package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/session"
	"lectern/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and extract slides from dropped videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := preflight(cfg, false); err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			orch, _, closeStore, err := ctx.newOrchestrator()
			if err != nil {
				return err
			}
			defer closeStore()

			logger, err := ctx.buildLogger()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			handler := func(runCtx context.Context, path string) error {
				sess, err := orch.StartSession(runCtx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Processing %s (session %s)\n", path, shortID(sess.ID))
				proj, err := orch.Run(runCtx, sess)
				if err != nil {
					return err
				}
				if proj.State.Status == session.StatusFailed {
					return fmt.Errorf("session %s failed: %s", shortID(sess.ID), proj.State.FailureReason)
				}
				fmt.Fprintf(out, "Session %s completed: %s\n", shortID(sess.ID), proj.ReportPath)
				return nil
			}

			w, err := watcher.New(dir, handler, logger)
			if err != nil {
				return err
			}
			defer w.Close()

			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Fprintf(out, "Watching %s for video files (Ctrl-C to stop)\n", dir)
			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
