package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/foldiff/foldiff/internal/foldifferr"
)

// newLogger builds the single *slog.Logger threaded through a
// subcommand's run, writing text-formatted records to stderr. Library
// packages under internal/ never log directly — only this command
// package does; everything else returns errors for diagnostic to
// report.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// diagnostic prints the single stderr line every foldiff error
// produces: kind, message, and (when present) the affected path.
func diagnostic(err error) {
	fe, ok := foldifferr.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "foldiff: %v\n", err)
		return
	}
	if fe.Path == "" {
		fmt.Fprintf(os.Stderr, "%s: %v\n", fe.Kind, fe.Err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v (path: %s)\n", fe.Kind, fe.Err, fe.Path)
}
