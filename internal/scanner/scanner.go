// Package scanner walks a directory tree and produces the path-keyed
// inventory that the classifier consumes. It is the "leaves first"
// component of foldiff's pipeline: it knows nothing about old/new
// pairing, only about a single root.
package scanner

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
	"github.com/foldiff/foldiff/internal/workpool"
)

// FileRecord is the per-path result of a scan.
type FileRecord struct {
	Path    pathset.Path
	Size    uint64
	Hash    fshash.Hash
	TypeTag string
}

// osSeparator is the host path separator, translated to "/" in every
// stored Path per spec.
const osSeparator = os.PathSeparator

// Scan walks root recursively and returns a map of every regular
// file's Path to its FileRecord. Directories with no regular-file
// descendants produce no entries. A symbolic link anywhere in the
// tree is a fatal InputError — foldiff does not represent symlinks.
//
// Hashing and type-tag detection run as independent work units on
// pool; Scan blocks until every unit completes or one fails.
func Scan(ctx context.Context, root string, pool *workpool.Pool) (map[pathset.Path]FileRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, foldifferr.WithPath(foldifferr.Input, root, err)
	}
	if !info.IsDir() {
		return nil, foldifferr.WithPath(foldifferr.Input, root, fileNotDirError{})
	}

	var (
		mu      sync.Mutex
		results = make(map[pathset.Path]FileRecord)
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
			// Anything else (device, socket, etc.) is treated the
			// same as a symlink: foldiff only represents regular
			// files and cannot round-trip this entry.
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

			f, err := os.Open(osPath)
			if err != nil {
				return foldifferr.WithPath(foldifferr.Input, string(p), err)
			}
			defer f.Close()

			stat, err := f.Stat()
			if err != nil {
				return foldifferr.WithPath(foldifferr.Io, string(p), err)
			}

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
			results[p] = FileRecord{
				Path:    p,
				Size:    uint64(stat.Size()),
				Hash:    hash,
				TypeTag: tag,
			}
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

type fileNotDirError struct{}

func (fileNotDirError) Error() string { return "root is not a directory" }
