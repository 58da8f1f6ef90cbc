package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/foldiff/foldiff/internal/applyengine"
	"github.com/foldiff/foldiff/internal/container"
	"github.com/foldiff/foldiff/internal/foldifferr"
	"github.com/foldiff/foldiff/internal/workpool"
)

func runApply(args []string) int {
	flagSet := pflag.NewFlagSet("foldiff apply", pflag.ContinueOnError)
	workers := flagSet.Int("workers", workpool.DefaultSize(), "worker pool size for materialization")
	stats := flagSet.Bool("stats", false, "print a summary after a successful apply")
	verbose := flagSet.BoolP("verbose", "v", false, "raise log verbosity to debug")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "foldiff apply: %v\n", err)
		return 2
	}

	positional := flagSet.Args()
	if len(positional) != 3 {
		fmt.Fprintln(os.Stderr, "usage: foldiff apply <old-dir> <in.fldf> <new-dir>")
		return 2
	}
	oldRoot, inPath, newRoot := positional[0], positional[1], positional[2]

	logger := newLogger(*verbose)
	ctx := context.Background()
	start := time.Now()

	f, err := os.Open(inPath)
	if err != nil {
		diagnostic(foldifferr.WithPath(foldifferr.Input, inPath, err))
		return 2
	}
	defer f.Close()

	if err := os.MkdirAll(newRoot, 0o755); err != nil {
		diagnostic(foldifferr.WithPath(foldifferr.Io, newRoot, err))
		return 1
	}

	pool := workpool.New(ctx, *workers)
	r := container.NewReader(f)
	if err := applyengine.Apply(ctx, oldRoot, r, newRoot, pool); err != nil {
		diagnostic(err)
		return exitCodeForApply(err)
	}

	logger.Debug("apply complete", "old_root", oldRoot, "new_root", newRoot)
	if *stats {
		fmt.Printf("applied %s -> %s in %s\n", inPath, newRoot, time.Since(start).Round(time.Millisecond))
	}
	return 0
}

func exitCodeForApply(err error) int {
	switch foldifferr.KindOf(err) {
	case foldifferr.Input:
		return 2
	case foldifferr.Integrity:
		return 3
	default:
		return 1
	}
}
