package foldiffupgrade

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/foldiff/foldiff/internal/foldifferr"
	"github.com/foldiff/foldiff/internal/fshash"
	"github.com/foldiff/foldiff/internal/pathset"
	"github.com/foldiff/foldiff/internal/scanner"
	"github.com/foldiff/foldiff/internal/workpool"
)

const osSeparator = os.PathSeparator

// ScanWithCache walks root exactly like scanner.Scan, but consults
// cache first: a file whose size and modification time match a prior
// recording is trusted without being re-opened or re-hashed. Every
// file actually hashed (cache miss, or no cache entry) is recorded
// back into cache for the next run. namespace distinguishes this
// root's entries from another root scanned with the same cache (e.g.
// the old and new trees of a single diff, which may share relative
// paths). The caller is responsible for persisting cache afterward
// via Cache.Save.
func ScanWithCache(ctx context.Context, root string, pool *workpool.Pool, cache *Cache, namespace string) (map[pathset.Path]scanner.FileRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, foldifferr.WithPath(foldifferr.Input, root, err)
	}
	if !info.IsDir() {
		return nil, foldifferr.Newf(foldifferr.Input, "root %q is not a directory", root)
	}

	var (
		mu      sync.Mutex
		results = make(map[pathset.Path]scanner.FileRecord)
	)

	walkErr := filepath.WalkDir(root, func(osPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return foldifferr.WithPath(foldifferr.Input, osPath, err)
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return foldifferr.WithPath(foldifferr.Input, osPath, symlinkError{})
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return foldifferr.WithPath(foldifferr.Input, osPath, unsupportedEntryError{})
		}

		rel := strings.TrimPrefix(osPath, root)
		rel = strings.TrimPrefix(rel, string(osSeparator))
		p, perr := pathset.FromOSPath(root, osPath, osSeparator)
		if perr != nil {
			return perr
		}

		pool.Submit(func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return context.Cause(ctx)
			default:
			}

			info, err := d.Info()
			if err != nil {
				return foldifferr.WithPath(foldifferr.Io, string(p), err)
			}
			size := uint64(info.Size())
			modTime := info.ModTime().UnixNano()

			if entry, ok := cache.Lookup(namespace, p, size, modTime); ok {
				mu.Lock()
				results[p] = scanner.FileRecord{
					Path:    p,
					Size:    size,
					Hash:    fshash.Hash(entry.Hash),
					TypeTag: entry.TypeTag,
				}
				mu.Unlock()
				return nil
			}

			f, err := os.Open(osPath)
			if err != nil {
				return foldifferr.WithPath(foldifferr.Input, string(p), err)
			}
			defer f.Close()

			tag, err := fshash.DetectTypeTag(f, fallbackExtension(rel))
			if err != nil {
				return foldifferr.WithPath(foldifferr.Io, string(p), err)
			}
			if _, err := f.Seek(0, 0); err != nil {
				return foldifferr.WithPath(foldifferr.Io, string(p), err)
			}

			hash, err := fshash.HashReader(f)
			if err != nil {
				return foldifferr.WithPath(foldifferr.Io, string(p), err)
			}

			mu.Lock()
			results[p] = scanner.FileRecord{Path: p, Size: size, Hash: hash, TypeTag: tag}
			cache.Record(namespace, p, hash, tag, size, modTime)
			mu.Unlock()
			return nil
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func fallbackExtension(relPath string) string {
	ext := filepath.Ext(relPath)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

type symlinkError struct{}

func (symlinkError) Error() string { return "symbolic links are not supported" }

type unsupportedEntryError struct{}

func (unsupportedEntryError) Error() string { return "unsupported non-regular file" }
