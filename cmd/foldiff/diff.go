package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/foldiff/foldiff/internal/binarydiff"
	"github.com/foldiff/foldiff/internal/classifier"
	"github.com/foldiff/foldiff/internal/container"
	"github.com/foldiff/foldiff/internal/foldiffupgrade"
	"github.com/foldiff/foldiff/internal/foldifferr"
	"github.com/foldiff/foldiff/internal/scanner"
	"github.com/foldiff/foldiff/internal/workpool"
)

const osPathSeparator = os.PathSeparator

func runDiff(args []string) int {
	flagSet := pflag.NewFlagSet("foldiff diff", pflag.ContinueOnError)
	workers := flagSet.Int("workers", workpool.DefaultSize(), "worker pool size for scanning")
	stats := flagSet.Bool("stats", false, "print a summary after a successful diff")
	cachePath := flagSet.String("cache", "", "inventory cache file (speeds up repeated diffs against the same old tree)")
	verbose := flagSet.BoolP("verbose", "v", false, "raise log verbosity to debug")
	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "foldiff diff: %v\n", err)
		return 2
	}

	positional := flagSet.Args()
	if len(positional) != 3 {
		fmt.Fprintln(os.Stderr, "usage: foldiff diff <old-dir> <new-dir> <out.fldf>")
		return 2
	}
	oldRoot, newRoot, outPath := positional[0], positional[1], positional[2]

	logger := newLogger(*verbose)
	ctx := context.Background()
	start := time.Now()

	cs, err := buildChangeSet(ctx, oldRoot, newRoot, *workers, *cachePath, logger)
	if err != nil {
		diagnostic(err)
		return exitCodeForDiff(err)
	}

	m := container.FromChangeSet(cs)

	out, err := os.Create(outPath)
	if err != nil {
		diagnostic(foldifferr.WithPath(foldifferr.Io, outPath, err))
		return 1
	}
	defer out.Close()

	w := container.NewWriter(out)
	var incompressibleBlobs int
	if err := writeContainer(w, cs, m, oldRoot, newRoot, &incompressibleBlobs); err != nil {
		diagnostic(err)
		return exitCodeForDiff(err)
	}

	if *stats {
		printDiffStats(cs, incompressibleBlobs, time.Since(start))
	}
	return 0
}

// buildChangeSet scans both trees (consulting an inventory cache when
// cachePath is non-empty, saving it back afterward) and classifies the
// result.
func buildChangeSet(ctx context.Context, oldRoot, newRoot string, workers int, cachePath string, logger *slog.Logger) (*classifier.ChangeSet, error) {
	if cachePath != "" {
		cache, err := foldiffupgrade.Load(cachePath)
		if err != nil {
			return nil, foldifferr.WithPath(foldifferr.Io, cachePath, err)
		}
		oldMap, err := foldiffupgrade.ScanWithCache(ctx, oldRoot, workpool.New(ctx, workers), cache, "old")
		if err != nil {
			return nil, err
		}
		newMap, err := foldiffupgrade.ScanWithCache(ctx, newRoot, workpool.New(ctx, workers), cache, "new")
		if err != nil {
			return nil, err
		}
		if err := cache.Save(cachePath); err != nil {
			return nil, foldifferr.WithPath(foldifferr.Io, cachePath, err)
		}
		logger.Debug("scan complete", "cache", cachePath, "old_entries", len(oldMap), "new_entries", len(newMap))
		return classifier.Classify(oldMap, newMap), nil
	}

	oldMap, err := scanner.Scan(ctx, oldRoot, workpool.New(ctx, workers))
	if err != nil {
		return nil, err
	}
	newMap, err := scanner.Scan(ctx, newRoot, workpool.New(ctx, workers))
	if err != nil {
		return nil, err
	}
	logger.Debug("scan complete", "old_entries", len(oldMap), "new_entries", len(newMap))
	return classifier.Classify(oldMap, newMap), nil
}

// writeContainer streams every blob and patch the manifest references
// directly into w, in manifest order.
func writeContainer(w *container.Writer, cs *classifier.ChangeSet, m *container.Manifest, oldRoot, newRoot string, incompressibleBlobs *int) error {
	if err := w.WriteHeader(m); err != nil {
		return err
	}

	if err := w.WriteNewBlobs(m.NewBlobLen(), func(i int, dst io.Writer) error {
		target := cs.NewBlobs[i]
		srcPath := target.Path.ToOSPath(newRoot, osPathSeparator)
		f, err := os.Open(srcPath)
		if err != nil {
			return foldifferr.WithPath(foldifferr.Input, srcPath, err)
		}
		defer f.Close()

		probed, err := probeIncompressible(f)
		if err != nil {
			return foldifferr.WithPath(foldifferr.Io, srcPath, err)
		}
		if probed {
			*incompressibleBlobs++
		}

		return binarydiff.EncodeNewBlob(f, dst)
	}); err != nil {
		return err
	}

	if err := w.WritePatches(len(cs.Patches), func(i int, dst io.Writer) error {
		target := cs.Patches[i]
		oldPath := target.Path.ToOSPath(oldRoot, osPathSeparator)
		newPath := target.Path.ToOSPath(newRoot, osPathSeparator)

		oldFile, err := os.Open(oldPath)
		if err != nil {
			return foldifferr.WithPath(foldifferr.Input, oldPath, err)
		}
		defer oldFile.Close()
		newFile, err := os.Open(newPath)
		if err != nil {
			return foldifferr.WithPath(foldifferr.Input, newPath, err)
		}
		defer newFile.Close()

		oldStat, err := oldFile.Stat()
		if err != nil {
			return foldifferr.WithPath(foldifferr.Io, oldPath, err)
		}
		newStat, err := newFile.Stat()
		if err != nil {
			return foldifferr.WithPath(foldifferr.Io, newPath, err)
		}

		if err := binarydiff.Encode(oldFile, newFile, uint64(oldStat.Size()), uint64(newStat.Size()), dst); err != nil {
			return foldifferr.WithPath(foldifferr.Compression, newPath, err)
		}
		return nil
	}); err != nil {
		return err
	}

	return nil
}

// probeIncompressible samples up to the compress probe's window from
// the front of f without disturbing its read position, for --stats
// reporting only — the blob is zstd-compressed regardless.
func probeIncompressible(f *os.File) (bool, error) {
	const sampleSize = 64 * 1024
	sample := make([]byte, sampleSize)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return container.LikelyIncompressible(sample[:n]), nil
}

func printDiffStats(cs *classifier.ChangeSet, incompressibleBlobs int, elapsed time.Duration) {
	fmt.Printf("untouched=%d duplicated=%d deleted=%d new=%d patched=%d\n",
		len(cs.Untouched), len(cs.Duplicated), len(cs.Deleted), len(cs.New), len(cs.Patched))
	fmt.Printf("new blobs written: %s, %d likely incompressible\n",
		humanize.Comma(int64(len(cs.NewBlobs))), incompressibleBlobs)
	fmt.Printf("elapsed: %s\n", elapsed.Round(time.Millisecond))
}

func exitCodeForDiff(err error) int {
	switch foldifferr.KindOf(err) {
	case foldifferr.Input:
		return 2
	default:
		return 1
	}
}
