// foldiff diffs and reconstitutes directory trees as content-addressed
// FLDF containers: a manifest of classified path changes plus the blob
// and patch bytes needed to rebuild the new tree from the old one.
package main

import (
	"fmt"
	"os"

	"github.com/foldiff/foldiff/internal/buildinfo"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "diff":
		return runDiff(args[1:])
	case "apply":
		return runApply(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "--version", "version":
		fmt.Printf("foldiff %s\n", buildinfo.Info())
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "foldiff: unknown subcommand %q\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: foldiff <subcommand> [flags] ...

subcommands:
  diff <old-dir> <new-dir> <out.fldf>       build a container from two trees
  apply <old-dir> <in.fldf> <new-dir>       materialize a tree from a container
  verify <a> <b>                            compare two trees for content equality
  verify <old> <new> <in.fldf>              verify old/new against a container's manifest
  version                                   print build information

common flags (diff, apply):
  --workers N      override the worker pool size (default: one per CPU)
  --stats          print a human-readable summary on success
  -v, --verbose    raise log verbosity to debug

diff-only flags:
  --cache FILE     read/write an inventory cache to speed up repeated diffs

verify takes --workers only; it emits no log output, so it has no -v flag.
`)
}
