package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/ebogdum/cloudbox/core"
	"github.com/ebogdum/cloudbox/transfer"
)

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	info    = color.New(color.FgCyan).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func printSuccess(format string, a ...any) {
	fmt.Printf("%s %s\n", success("✓"), fmt.Sprintf(format, a...))
}

func printFailure(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", failure("✗"), fmt.Sprintf(format, a...))
}

// progressBar returns a progress callback drawing a bar on w, and a function
// that finishes the bar. Both are no-ops when progress output is off.
func progressBar(enabled bool, w io.Writer, total int64, description string) (core.FileProgressFunc, func()) {
	if !enabled {
		return nil, func() {}
	}

	bar := transfer.NewBarReporter(w, total, description)
	return func(ev core.FileTransferEvent) transfer.Action {
		bar.Update(ev.CurrentBytes, ev.TotalBytes)
		return transfer.Continue
	}, bar.Finish
}
