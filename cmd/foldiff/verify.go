package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/foldiff/foldiff/internal/applyengine"
	"github.com/foldiff/foldiff/internal/container"
	"github.com/foldiff/foldiff/internal/foldifferr"
	"github.com/foldiff/foldiff/internal/pathset"
	"github.com/foldiff/foldiff/internal/scanner"
	"github.com/foldiff/foldiff/internal/workpool"
)

func runVerify(args []string) int {
	flagSet := pflag.NewFlagSet("foldiff verify", pflag.ContinueOnError)
	workers := flagSet.Int("workers", workpool.DefaultSize(), "worker pool size")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "foldiff verify: %v\n", err)
		return 2
	}

	positional := flagSet.Args()
	ctx := context.Background()

	switch len(positional) {
	case 2:
		return verifyTrees(ctx, positional[0], positional[1], *workers)
	case 3:
		return verifyAgainstManifest(ctx, positional[0], positional[1], positional[2], *workers)
	default:
		fmt.Fprintln(os.Stderr, "usage: foldiff verify <a> <b>")
		fmt.Fprintln(os.Stderr, "       foldiff verify <old> <new> <in.fldf>")
		return 2
	}
}

// verifyTrees compares two trees for content equality. A path present
// in only one tree is reported as a mismatch, per the conservative
// reading that unexpected files make two trees unequal.
func verifyTrees(ctx context.Context, a, b string, workers int) int {
	recA, err := scanner.Scan(ctx, a, workpool.New(ctx, workers))
	if err != nil {
		diagnostic(err)
		return exitCodeForVerify(err)
	}
	recB, err := scanner.Scan(ctx, b, workpool.New(ctx, workers))
	if err != nil {
		diagnostic(err)
		return exitCodeForVerify(err)
	}

	equal := true
	for p, ra := range recA {
		rb, ok := recB[p]
		if !ok {
			fmt.Fprintf(os.Stderr, "mismatch: %s present in %s but not %s\n", p, a, b)
			equal = false
			continue
		}
		if ra.Hash != rb.Hash {
			fmt.Fprintf(os.Stderr, "mismatch: %s differs between %s and %s\n", p, a, b)
			equal = false
		}
	}
	for p := range recB {
		if _, ok := recA[p]; !ok {
			fmt.Fprintf(os.Stderr, "mismatch: %s present in %s but not %s\n", p, b, a)
			equal = false
		}
	}

	if !equal {
		return 1
	}
	return 0
}

// verifyAgainstManifest checks that oldRoot satisfies every old-side
// hash the manifest references, and that newRoot matches exactly what
// applying the manifest would produce: every manifest-declared new
// path must exist with the declared hash, and newRoot must contain no
// unexpected path the manifest doesn't account for.
func verifyAgainstManifest(ctx context.Context, oldRoot, newRoot, inPath string, workers int) int {
	f, err := os.Open(inPath)
	if err != nil {
		diagnostic(foldifferr.WithPath(foldifferr.Input, inPath, err))
		return 2
	}
	defer f.Close()

	r := container.NewReader(f)
	m, err := r.ReadHeader()
	if err != nil {
		diagnostic(err)
		return 2
	}

	pool := workpool.New(ctx, workers)
	if err := applyengine.VerifyManifestPreconditions(oldRoot, m, pool); err != nil {
		diagnostic(err)
		return 1
	}

	expected := make(map[pathset.Path]uint64)
	for _, u := range m.Untouched {
		p, perr := pathset.New(u.Path)
		if perr != nil {
			diagnostic(perr)
			return 2
		}
		expected[p] = u.Hash
	}
	for _, d := range m.Duplicated {
		for _, raw := range d.NewPaths {
			p, perr := pathset.New(raw)
			if perr != nil {
				diagnostic(perr)
				return 2
			}
			expected[p] = d.Hash
		}
	}
	for _, n := range m.New {
		p, perr := pathset.New(n.Path)
		if perr != nil {
			diagnostic(perr)
			return 2
		}
		expected[p] = n.Hash
	}
	for _, pe := range m.Patched {
		p, perr := pathset.New(pe.Path)
		if perr != nil {
			diagnostic(perr)
			return 2
		}
		expected[p] = pe.NewHash
	}

	actual, err := scanner.Scan(ctx, newRoot, workpool.New(ctx, workers))
	if err != nil {
		diagnostic(err)
		return exitCodeForVerify(err)
	}

	mismatch := false
	for p, wantHash := range expected {
		rec, ok := actual[p]
		if !ok {
			fmt.Fprintf(os.Stderr, "mismatch: %s missing from %s\n", p, newRoot)
			mismatch = true
			continue
		}
		if uint64(rec.Hash) != wantHash {
			fmt.Fprintf(os.Stderr, "mismatch: %s in %s has unexpected content\n", p, newRoot)
			mismatch = true
		}
	}
	for p := range actual {
		if _, ok := expected[p]; !ok {
			fmt.Fprintf(os.Stderr, "mismatch: %s in %s is not accounted for by %s\n", p, newRoot, inPath)
			mismatch = true
		}
	}

	if mismatch {
		return 1
	}
	return 0
}

func exitCodeForVerify(err error) int {
	switch foldifferr.KindOf(err) {
	case foldifferr.Input:
		return 2
	default:
		return 1
	}
}
