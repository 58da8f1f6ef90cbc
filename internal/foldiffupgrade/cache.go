// Package foldiffupgrade provides additive, non-format-affecting
// mechanics for running foldiff repeatedly against the same old tree:
// a CBOR-backed inventory cache that lets a scan skip re-hashing files
// whose size and modification time haven't changed since the last
// recorded pass.
package foldiffupgrade

import (
	"os"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/foldiff/foldiff/internal/fshash"
	"github.com/foldiff/foldiff/internal/pathset"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("foldiffupgrade: cbor encoder init: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("foldiffupgrade: cbor decoder init: " + err.Error())
	}
}

// CacheEntry records what a prior scan observed for one path. If a
// later scan finds the same Size and ModTime at that path, its Hash
// and TypeTag can be reused without re-reading the file.
type CacheEntry struct {
	Hash    uint64 `cbor:"hash"`
	TypeTag string `cbor:"type_tag"`
	Size    uint64 `cbor:"size"`
	ModTime int64  `cbor:"mtime_unix_nanos"`
}

// Cache is keyed by a namespace-prefixed path string (not pathset.Path
// directly — CBOR map keys need a plain comparable scalar). The
// namespace prefix keeps two scans sharing a cache (an old tree and a
// new tree) from answering for each other's files at the same
// relative path.
type Cache struct {
	Entries map[string]CacheEntry `cbor:"entries"`
}

// NewCache returns an empty cache ready for population.
func NewCache() *Cache {
	return &Cache{Entries: make(map[string]CacheEntry)}
}

// Load reads a cache previously written by Save. A missing file
// is not an error — it simply means no cache exists yet.
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCache(), nil
		}
		return nil, err
	}
	c := NewCache()
	if err := decMode.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Entries == nil {
		c.Entries = make(map[string]CacheEntry)
	}
	return c, nil
}

// Save writes c to path using CBOR Core Deterministic Encoding, so
// two runs over an unchanged inventory produce byte-identical cache
// files.
func (c *Cache) Save(path string) error {
	data, err := encMode.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Lookup returns the cached entry for p under namespace if its size
// and modification time match what the cache recorded. namespace
// distinguishes scans of different roots (e.g. "old" vs "new") that
// may otherwise share relative paths.
func (c *Cache) Lookup(namespace string, p pathset.Path, size uint64, modTime int64) (CacheEntry, bool) {
	entry, ok := c.Entries[cacheKey(namespace, p)]
	if !ok || entry.Size != size || entry.ModTime != modTime {
		return CacheEntry{}, false
	}
	return entry, true
}

// Record stores what a scan observed for p under namespace, to be
// consulted by the next run's Lookup.
func (c *Cache) Record(namespace string, p pathset.Path, hash fshash.Hash, typeTag string, size uint64, modTime int64) {
	c.Entries[cacheKey(namespace, p)] = CacheEntry{Hash: uint64(hash), TypeTag: typeTag, Size: size, ModTime: modTime}
}

func cacheKey(namespace string, p pathset.Path) string {
	return namespace + "\x00" + string(p)
}
