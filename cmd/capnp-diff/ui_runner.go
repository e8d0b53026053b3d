package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"capnpdiff/internal/driver"
	"capnpdiff/internal/ui"
)

// runDiffWithUI computes the diff in the background while the browser
// renders progress, then hands it the result for interactive viewing.
func runDiffWithUI(ctx context.Context, cfg *diffConfig) error {
	events := make(chan driver.Event, 256)
	result := make(chan ui.Result, 1)

	go func() {
		opts := cfg.opts
		opts.Progress = driver.ChannelSink{Ch: events}
		d, err := driver.DiffInputs(ctx, &opts, cfg.oldIn, cfg.newIn)
		res := ui.Result{Diff: d, Err: err}
		if err == nil {
			res.Sources = driver.LoadSources(ctx, d, cfg.baseDir)
		}
		result <- res
		close(events)
	}()

	model := ui.NewBrowser("capnp-diff", events, result)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, err := program.Run()
	return err
}
