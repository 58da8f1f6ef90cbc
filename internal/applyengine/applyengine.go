// Package applyengine materializes a new tree from an old tree and a
// container, running the six fixed steps the format guarantees are
// safe to run in this order: parse, validate, copy/duplicate,
// (implicitly) delete, create, patch.
package applyengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/foldiff/foldiff/internal/binarydiff"
	"github.com/foldiff/foldiff/internal/container"
	"github.com/foldiff/foldiff/internal/foldifferr"
	"github.com/foldiff/foldiff/internal/fshash"
	"github.com/foldiff/foldiff/internal/pathset"
	"github.com/foldiff/foldiff/internal/reflink"
	"github.com/foldiff/foldiff/internal/workpool"
)

const osSeparator = os.PathSeparator

// Apply reads a manifest and its blobs from r and materializes
// newRoot, reading source content for copies and patches from
// oldRoot. pool bounds how many file operations run concurrently.
func Apply(ctx context.Context, oldRoot string, r *container.Reader, newRoot string, pool *workpool.Pool) error {
	// Step 1: parse manifest fully into memory.
	m, err := r.ReadHeader()
	if err != nil {
		return err
	}

	// Step 2: validate every old-side hash the manifest references.
	if err := VerifyManifestPreconditions(oldRoot, m, pool); err != nil {
		return err
	}

	expected := expectedNewHashes(m)

	// Step 3: Untouched & Duplicated, materialized from old paths.
	if err := materializeFromOld(oldRoot, newRoot, m, pool); err != nil {
		return err
	}

	// Step 4: Deleted is a no-op in the new tree.

	// Step 5: New — stream blobs in order, decompress into their
	// target paths. Every Duplicated entry is satisfiable by copying
	// from an old path (step 3), so no new blob is ever owned by a
	// Duplicated entry; only m.New entries own blobs.
	newPathByIndex := make(map[uint64]pathset.Path, len(m.New))
	for _, n := range m.New {
		p, perr := pathset.New(n.Path)
		if perr != nil {
			return perr
		}
		newPathByIndex[n.Index] = p
	}

	if err := r.ReadNewBlobs(func(i int, blob io.Reader) error {
		idx := uint64(i)
		target, ok := newPathByIndex[idx]
		if !ok {
			return foldifferr.Newf(foldifferr.Format, "new blob %d has no owning manifest entry", idx)
		}
		dst := target.ToOSPath(newRoot, osSeparator)
		if err := mkdirForFile(dst); err != nil {
			return err
		}
		return decompressBlobInto(blob, dst)
	}); err != nil {
		return err
	}

	// Step 6: Patched — stream patch blobs in order, decoding each
	// against its old file.
	patchedByIndex := make(map[uint64]container.PatchedEntry, len(m.Patched))
	for _, p := range m.Patched {
		patchedByIndex[p.Index] = p
	}
	if err := r.ReadPatches(func(i int, src io.Reader) error {
		idx := uint64(i)
		entry, ok := patchedByIndex[idx]
		if !ok {
			return foldifferr.Newf(foldifferr.Format, "patch %d has no owning manifest entry", idx)
		}
		p, perr := pathset.New(entry.Path)
		if perr != nil {
			return perr
		}
		oldPath := p.ToOSPath(oldRoot, osSeparator)
		dst := p.ToOSPath(newRoot, osSeparator)
		if err := mkdirForFile(dst); err != nil {
			return err
		}
		return applyPatch(oldPath, dst, src)
	}); err != nil {
		return err
	}

	return verifyNewHashes(newRoot, expected)
}

// VerifyManifestPreconditions confirms that every old-side hash the
// manifest references matches the actual content at that path under
// oldRoot. It is shared between ApplyEngine's own step 2 and the
// three-argument `verify old new in.fldf` CLI form, so both paths
// agree on what "the old tree matches what this manifest expects"
// means.
func VerifyManifestPreconditions(oldRoot string, m *container.Manifest, pool *workpool.Pool) error {
	type ref struct {
		path string
		hash uint64
	}
	var refs []ref
	for _, u := range m.Untouched {
		refs = append(refs, ref{u.Path, u.Hash})
	}
	for _, d := range m.Deleted {
		refs = append(refs, ref{d.Path, d.Hash})
	}
	for _, d := range m.Duplicated {
		for _, p := range d.OldPaths {
			refs = append(refs, ref{p, d.Hash})
		}
	}
	for _, p := range m.Patched {
		refs = append(refs, ref{p.Path, p.OldHash})
	}

	for _, r := range refs {
		r := r
		pool.Submit(func(ctx context.Context) error {
			pathVal, perr := pathset.New(r.path)
			if perr != nil {
				return perr
			}
			osPath := pathVal.ToOSPath(oldRoot, osSeparator)
			f, err := os.Open(osPath)
			if err != nil {
				return foldifferr.WithPath(foldifferr.Input, osPath, err)
			}
			defer f.Close()
			h, err := fshash.HashReader(f)
			if err != nil {
				return foldifferr.WithPath(foldifferr.Io, osPath, err)
			}
			if uint64(h) != r.hash {
				return foldifferr.WithPath(foldifferr.Integrity, osPath, fmt.Errorf("old-side hash mismatch: manifest says %d, file hashes to %d", r.hash, h))
			}
			return nil
		})
	}
	return pool.Wait()
}

func materializeFromOld(oldRoot, newRoot string, m *container.Manifest, pool *workpool.Pool) error {
	type job struct {
		srcOld, dstNew string
	}
	var jobs []job

	for _, u := range m.Untouched {
		p, err := pathset.New(u.Path)
		if err != nil {
			return err
		}
		jobs = append(jobs, job{p.ToOSPath(oldRoot, osSeparator), p.ToOSPath(newRoot, osSeparator)})
	}
	for _, d := range m.Duplicated {
		if len(d.OldPaths) == 0 {
			return foldifferr.Newf(foldifferr.Format, "duplicated entry for hash %d has no old path to copy from", d.Hash)
		}
		canonical, err := pathset.New(d.OldPaths[0])
		if err != nil {
			return err
		}
		srcOld := canonical.ToOSPath(oldRoot, osSeparator)
		for _, raw := range d.NewPaths {
			p, err := pathset.New(raw)
			if err != nil {
				return err
			}
			jobs = append(jobs, job{srcOld, p.ToOSPath(newRoot, osSeparator)})
		}
	}

	for _, j := range jobs {
		j := j
		pool.Submit(func(ctx context.Context) error {
			if err := mkdirForFile(j.dstNew); err != nil {
				return err
			}
			if err := reflink.Clone(j.srcOld, j.dstNew); err != nil {
				return foldifferr.New(foldifferr.Io, err)
			}
			return nil
		})
	}
	return pool.Wait()
}

func decompressBlobInto(blob io.Reader, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return foldifferr.WithPath(foldifferr.Io, dst, err)
	}
	defer f.Close()

	if err := binarydiff.DecodeNewBlob(blob, f); err != nil {
		return foldifferr.WithPath(foldifferr.Compression, dst, err)
	}
	return nil
}

func applyPatch(oldPath, dst string, patch io.Reader) error {
	oldFile, err := os.Open(oldPath)
	if err != nil {
		return foldifferr.WithPath(foldifferr.Input, oldPath, err)
	}
	defer oldFile.Close()

	stat, err := oldFile.Stat()
	if err != nil {
		return foldifferr.WithPath(foldifferr.Io, oldPath, err)
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return foldifferr.WithPath(foldifferr.Io, dst, err)
	}
	defer dstFile.Close()

	if err := binarydiff.Decode(oldFile, uint64(stat.Size()), patch, dstFile); err != nil {
		return foldifferr.WithPath(foldifferr.Compression, dst, err)
	}
	return nil
}

type expectedHash struct {
	path string
	hash uint64
}

func expectedNewHashes(m *container.Manifest) []expectedHash {
	var out []expectedHash
	for _, u := range m.Untouched {
		out = append(out, expectedHash{u.Path, u.Hash})
	}
	for _, d := range m.Duplicated {
		for _, p := range d.NewPaths {
			out = append(out, expectedHash{p, d.Hash})
		}
	}
	for _, n := range m.New {
		out = append(out, expectedHash{n.Path, n.Hash})
	}
	for _, p := range m.Patched {
		out = append(out, expectedHash{p.Path, p.NewHash})
	}
	return out
}

func verifyNewHashes(newRoot string, expected []expectedHash) error {
	for _, e := range expected {
		p, err := pathset.New(e.path)
		if err != nil {
			return err
		}
		osPath := p.ToOSPath(newRoot, osSeparator)
		f, err := os.Open(osPath)
		if err != nil {
			return foldifferr.WithPath(foldifferr.Integrity, osPath, err)
		}
		h, err := fshash.HashReader(f)
		f.Close()
		if err != nil {
			return foldifferr.WithPath(foldifferr.Io, osPath, err)
		}
		if uint64(h) != e.hash {
			return foldifferr.WithPath(foldifferr.Integrity, osPath, fmt.Errorf("new-side hash mismatch: manifest says %d, file hashes to %d", e.hash, h))
		}
	}
	return nil
}

func mkdirForFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return foldifferr.WithPath(foldifferr.Io, path, err)
	}
	return nil
}
