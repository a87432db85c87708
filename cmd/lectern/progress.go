package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lectern/internal/orchestrator"
	"lectern/internal/session"
)

// attachProgress hooks a stage progress bar onto the orchestrator when the
// command writes to a terminal. The returned function finalizes the bar.
func attachProgress(cmd *cobra.Command, orch *orchestrator.Orchestrator) func() {
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return func() {}
	}
	fd := file.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return func() {}
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(file),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	orch.WithProgressFunc(func(p *session.Projection) {
		bar.Describe(string(p.State.Status))
		_ = bar.Set(int(p.State.Status.Progress()))
	})
	return func() { _ = bar.Finish() }
}
