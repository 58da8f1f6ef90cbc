package container

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/foldiff/foldiff/internal/classifier"
)

// Version is the container format's 4-field version marker, encoded
// on the wire as a 4-element MessagePack array rather than a map, to
// match the field table in the format's external interface.
type Version struct {
	Major, Minor, Patch uint8
	Flag                byte // 'r' release, 'b' beta, 'a' alpha.
}

// CurrentVersion is written by this implementation.
var CurrentVersion = Version{1, 1, 0, 'r'}

var _ msgpack.CustomEncoder = Version{}
var _ msgpack.CustomDecoder = (*Version)(nil)

func (v Version) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(4); err != nil {
		return err
	}
	if err := enc.EncodeUint8(v.Major); err != nil {
		return err
	}
	if err := enc.EncodeUint8(v.Minor); err != nil {
		return err
	}
	if err := enc.EncodeUint8(v.Patch); err != nil {
		return err
	}
	return enc.EncodeUint8(v.Flag)
}

func (v *Version) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	var flag uint8
	fields := [4]*uint8{&v.Major, &v.Minor, &v.Patch, &flag}
	for i := 0; i < n && i < 4; i++ {
		u, err := dec.DecodeUint8()
		if err != nil {
			return err
		}
		*fields[i] = u
	}
	v.Flag = flag
	return nil
}

// CompatibleVersion reports whether a manifest at v can be read by a
// reader built against CurrentVersion: readers accept any version
// whose (major, minor) is at most the current implementation's.
func CompatibleVersion(v Version) bool {
	if v.Major != CurrentVersion.Major {
		return v.Major < CurrentVersion.Major
	}
	return v.Minor <= CurrentVersion.Minor
}

// UntouchedEntry mirrors classifier.Untouched on the wire.
type UntouchedEntry struct {
	Path string `msgpack:"path"`
	Hash uint64 `msgpack:"hash"`
}

// DeletedEntry mirrors classifier.Deleted on the wire.
type DeletedEntry struct {
	Hash uint64 `msgpack:"hash"`
	Path string `msgpack:"path"`
}

// NewFileEntry mirrors classifier.NewEntry on the wire.
type NewFileEntry struct {
	Hash  uint64 `msgpack:"hash"`
	Index uint64 `msgpack:"index"`
	Path  string `msgpack:"path"`
}

// DuplicatedEntry mirrors classifier.Duplicated on the wire.
type DuplicatedEntry struct {
	Hash     uint64   `msgpack:"hash"`
	Index    uint64   `msgpack:"index"`
	OldPaths []string `msgpack:"old_paths"`
	NewPaths []string `msgpack:"new_paths"`
}

// PatchedEntry mirrors classifier.Patched on the wire.
type PatchedEntry struct {
	OldHash uint64 `msgpack:"old_hash"`
	NewHash uint64 `msgpack:"new_hash"`
	Index   uint64 `msgpack:"index"`
	Path    string `msgpack:"path"`
}

// Manifest is the MessagePack object stored immediately after the
// magic bytes. Absent list fields decode as nil slices (treated as
// empty), so older manifests that omit a field remain readable.
type Manifest struct {
	Version    Version           `msgpack:"version"`
	Untouched  []UntouchedEntry  `msgpack:"untouched"`
	Deleted    []DeletedEntry    `msgpack:"deleted"`
	New        []NewFileEntry    `msgpack:"new"`
	Duplicated []DuplicatedEntry `msgpack:"duplicated"`
	Patched    []PatchedEntry    `msgpack:"patched"`
}

// NewBlobLen returns the number of new blobs the container must
// carry: every New entry, plus every Duplicated entry that needed a
// blob of its own.
func (m *Manifest) NewBlobLen() int {
	n := len(m.New)
	for _, d := range m.Duplicated {
		if d.Index != classifier.NoBlobIndex {
			n++
		}
	}
	return n
}

// FromChangeSet builds the wire manifest from a ChangeSet.
func FromChangeSet(cs *classifier.ChangeSet) *Manifest {
	m := &Manifest{Version: CurrentVersion}

	for _, u := range cs.Untouched {
		m.Untouched = append(m.Untouched, UntouchedEntry{Path: string(u.Path), Hash: uint64(u.Hash)})
	}
	for _, d := range cs.Deleted {
		m.Deleted = append(m.Deleted, DeletedEntry{Hash: uint64(d.Hash), Path: string(d.OldPath)})
	}
	for _, n := range cs.New {
		m.New = append(m.New, NewFileEntry{Hash: uint64(n.Hash), Index: n.BlobIndex, Path: string(n.NewPath)})
	}
	for _, d := range cs.Duplicated {
		entry := DuplicatedEntry{Hash: uint64(d.Hash), Index: d.BlobIndex}
		for _, p := range d.OldPaths {
			entry.OldPaths = append(entry.OldPaths, string(p))
		}
		for _, p := range d.NewPaths {
			entry.NewPaths = append(entry.NewPaths, string(p))
		}
		m.Duplicated = append(m.Duplicated, entry)
	}
	for _, p := range cs.Patched {
		m.Patched = append(m.Patched, PatchedEntry{OldHash: uint64(p.OldHash), NewHash: uint64(p.NewHash), Index: p.PatchIndex, Path: string(p.Path)})
	}

	return m
}
