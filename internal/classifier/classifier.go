// Package classifier partitions two Scanner inventories into the five
// disjoint change kinds foldiff's container format understands:
// Untouched, Duplicated, Deleted, New, and Patched.
package classifier

import (
	"sort"

	"github.com/foldiff/foldiff/internal/fshash"
	"github.com/foldiff/foldiff/internal/pathset"
	"github.com/foldiff/foldiff/internal/scanner"
)

// NoBlobIndex is the sentinel ("u64::MAX" in the wire format) meaning
// a Duplicated entry needs no new blob — every new path can be
// materialized by copying from an old path.
const NoBlobIndex = ^uint64(0)

// Untouched records a path whose content is identical on both sides.
type Untouched struct {
	Path pathset.Path
	Hash fshash.Hash
}

// Duplicated records one content hash appearing at one or more paths
// on each side.
type Duplicated struct {
	Hash      fshash.Hash
	OldPaths  []pathset.Path
	NewPaths  []pathset.Path
	BlobIndex uint64 // NoBlobIndex when every new path can be copied from an old path.
}

// Deleted records a path present only in the old tree.
type Deleted struct {
	Hash    fshash.Hash
	OldPath pathset.Path
}

// NewEntry records a path present only in the new tree, whose content
// has no hash-match anywhere in the old tree.
type NewEntry struct {
	Hash      fshash.Hash
	NewPath   pathset.Path
	BlobIndex uint64
}

// Patched records a path present on both sides with differing
// content, materialized as a chunked dictionary diff against the old
// file.
type Patched struct {
	OldHash    fshash.Hash
	NewHash    fshash.Hash
	Path       pathset.Path
	PatchIndex uint64
}

// NewBlobTarget names the path a new-blobs[] entry, once decompressed,
// should be written to.
type NewBlobTarget struct {
	Path pathset.Path
	Hash fshash.Hash
}

// PatchTarget names the old/new path pair a patches[] entry encodes a
// diff between.
type PatchTarget struct {
	Path             pathset.Path
	OldHash, NewHash fshash.Hash
}

// ChangeSet is the complete classification of two trees plus the
// index-ordered blob and patch target arrays BinaryDiffer and
// Container consume.
type ChangeSet struct {
	Untouched  []Untouched
	Duplicated []Duplicated
	Deleted    []Deleted
	New        []NewEntry
	Patched    []Patched

	NewBlobs []NewBlobTarget
	Patches  []PatchTarget
}

// Classify implements the six-step partition algorithm: extract
// Untouched paths, index the remainder by hash, extract Duplicated
// hashes, extract Patched paths, then whatever is left in each map is
// Deleted (old-only) or New (new-only). Every list — and the path
// lists inside each Duplicated entry — is sorted in reversed-segment
// order. blob_index and patch_index are assigned during the walk and
// then renumbered into a 0-based contiguous order keyed first by
// type_tag, then by reversed-segment path, so that on-disk blob order
// matches the order a decoder will want to consume it in.
func Classify(old, newMap map[pathset.Path]scanner.FileRecord) *ChangeSet {
	// Snapshots used only for TypeTag lookups during the final
	// renumbering pass — never mutated, unlike the working copies
	// below which shrink as paths are claimed by each step.
	oldAll, newAll := old, newMap

	work := func(m map[pathset.Path]scanner.FileRecord) map[pathset.Path]scanner.FileRecord {
		c := make(map[pathset.Path]scanner.FileRecord, len(m))
		for k, v := range m {
			c[k] = v
		}
		return c
	}
	oldWork := work(oldAll)
	newWork := work(newAll)

	cs := &ChangeSet{}

	// Step 1: Untouched.
	oldPaths := sortedKeys(oldWork)
	for _, p := range oldPaths {
		oldRec := oldWork[p]
		if newRec, ok := newWork[p]; ok && newRec.Hash == oldRec.Hash {
			cs.Untouched = append(cs.Untouched, Untouched{Path: p, Hash: oldRec.Hash})
			delete(oldWork, p)
			delete(newWork, p)
		}
	}

	// Step 2: hash indexing over the remainder.
	oldByHash := indexByHash(oldWork)
	newByHash := indexByHash(newWork)

	// Step 3: Duplicated. oldByHash[h] is only visited for hashes that
	// also appear in newByHash (the `ok` check below), and oldByHash is
	// itself built by indexing non-empty path lists, so oldP is always
	// non-empty here: every Duplicated entry can be materialized by
	// copying from an old path, and BlobIndex is always NoBlobIndex.
	for h, oldP := range oldByHash {
		newP, ok := newByHash[h]
		if !ok {
			continue
		}

		cs.Duplicated = append(cs.Duplicated, Duplicated{
			Hash:      h,
			OldPaths:  append([]pathset.Path(nil), oldP...),
			NewPaths:  append([]pathset.Path(nil), newP...),
			BlobIndex: NoBlobIndex,
		})

		for _, p := range oldP {
			delete(oldWork, p)
		}
		for _, p := range newP {
			delete(newWork, p)
		}
	}

	// Step 4: Patched — every path still present on both sides.
	remainingOld := sortedKeys(oldWork)
	for _, p := range remainingOld {
		newRec, ok := newWork[p]
		if !ok {
			continue
		}
		oldRec := oldWork[p]
		cs.Patched = append(cs.Patched, Patched{
			OldHash:    oldRec.Hash,
			NewHash:    newRec.Hash,
			Path:       p,
			PatchIndex: uint64(len(cs.Patches)),
		})
		cs.Patches = append(cs.Patches, PatchTarget{Path: p, OldHash: oldRec.Hash, NewHash: newRec.Hash})
		delete(oldWork, p)
		delete(newWork, p)
	}

	// Step 5: Deleted — whatever remains in old.
	for _, p := range sortedKeys(oldWork) {
		cs.Deleted = append(cs.Deleted, Deleted{Hash: oldWork[p].Hash, OldPath: p})
	}

	// Step 6: New — whatever remains in new.
	for _, p := range sortedKeys(newWork) {
		cs.New = append(cs.New, NewEntry{
			Hash:      newWork[p].Hash,
			NewPath:   p,
			BlobIndex: uint64(len(cs.NewBlobs)),
		})
		cs.NewBlobs = append(cs.NewBlobs, NewBlobTarget{Path: p, Hash: newWork[p].Hash})
	}

	sortChangeSet(cs)
	renumber(cs, oldAll, newAll)

	return cs
}

func indexByHash(m map[pathset.Path]scanner.FileRecord) map[fshash.Hash][]pathset.Path {
	idx := make(map[fshash.Hash][]pathset.Path)
	for p, rec := range m {
		idx[rec.Hash] = append(idx[rec.Hash], p)
	}
	for h := range idx {
		pathset.SortPaths(idx[h])
	}
	return idx
}

func sortedKeys(m map[pathset.Path]scanner.FileRecord) []pathset.Path {
	keys := make([]pathset.Path, 0, len(m))
	for p := range m {
		keys = append(keys, p)
	}
	pathset.SortPaths(keys)
	return keys
}

func sortChangeSet(cs *ChangeSet) {
	sort.Slice(cs.Untouched, func(i, j int) bool { return pathset.Less(cs.Untouched[i].Path, cs.Untouched[j].Path) })
	sort.Slice(cs.Deleted, func(i, j int) bool { return pathset.Less(cs.Deleted[i].OldPath, cs.Deleted[j].OldPath) })
	sort.Slice(cs.New, func(i, j int) bool { return pathset.Less(cs.New[i].NewPath, cs.New[j].NewPath) })
	sort.Slice(cs.Patched, func(i, j int) bool { return pathset.Less(cs.Patched[i].Path, cs.Patched[j].Path) })
	sort.Slice(cs.Duplicated, func(i, j int) bool {
		return pathset.Less(cs.Duplicated[i].OldPaths[0], cs.Duplicated[j].OldPaths[0])
	})
}

// renumber reassigns BlobIndex/PatchIndex so that on-disk blob order
// matches manifest iteration order: entries are sorted first by
// type_tag, then by reversed-segment path, and indices become a
// 0-based contiguous permutation of that order.
func renumber(cs *ChangeSet, oldAll, newAll map[pathset.Path]scanner.FileRecord) {
	type blobOwner struct {
		typeTag string
		path    pathset.Path
		isNew   bool
		newIdx  int // index into cs.New, when isNew
		dupIdx  int // index into cs.Duplicated, when !isNew
	}

	var blobs []blobOwner
	for i, n := range cs.New {
		blobs = append(blobs, blobOwner{typeTag: newAll[n.NewPath].TypeTag, path: n.NewPath, isNew: true, newIdx: i})
	}
	for i, d := range cs.Duplicated {
		if d.BlobIndex == NoBlobIndex {
			continue
		}
		blobs = append(blobs, blobOwner{typeTag: newAll[d.NewPaths[0]].TypeTag, path: d.NewPaths[0], isNew: false, dupIdx: i})
	}
	sort.Slice(blobs, func(i, j int) bool {
		if blobs[i].typeTag != blobs[j].typeTag {
			return blobs[i].typeTag < blobs[j].typeTag
		}
		return pathset.Less(blobs[i].path, blobs[j].path)
	})

	newBlobsSorted := make([]NewBlobTarget, len(blobs))
	for newIndex, b := range blobs {
		if b.isNew {
			oldBlobIndex := cs.New[b.newIdx].BlobIndex
			newBlobsSorted[newIndex] = cs.NewBlobs[oldBlobIndex]
			cs.New[b.newIdx].BlobIndex = uint64(newIndex)
		} else {
			oldBlobIndex := cs.Duplicated[b.dupIdx].BlobIndex
			newBlobsSorted[newIndex] = cs.NewBlobs[oldBlobIndex]
			cs.Duplicated[b.dupIdx].BlobIndex = uint64(newIndex)
		}
	}
	cs.NewBlobs = newBlobsSorted

	type patchOwner struct {
		typeTag string
		path    pathset.Path
		idx     int
	}
	owners := make([]patchOwner, len(cs.Patched))
	for i, p := range cs.Patched {
		owners[i] = patchOwner{typeTag: newAll[p.Path].TypeTag, path: p.Path, idx: i}
	}
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].typeTag != owners[j].typeTag {
			return owners[i].typeTag < owners[j].typeTag
		}
		return pathset.Less(owners[i].path, owners[j].path)
	})

	newPatchesSorted := make([]PatchTarget, len(owners))
	for newIndex, o := range owners {
		oldPatchIndex := cs.Patched[o.idx].PatchIndex
		newPatchesSorted[newIndex] = cs.Patches[oldPatchIndex]
		cs.Patched[o.idx].PatchIndex = uint64(newIndex)
	}
	cs.Patches = newPatchesSorted

	_ = oldAll // retained for symmetry / future old-side type_tag needs
}
