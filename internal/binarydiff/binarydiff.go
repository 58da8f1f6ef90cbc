// Package binarydiff implements chunked, prefix-referenced zstd
// diffing between two file handles of similar content. Each chunk of
// the new file is compressed with the corresponding chunk of the old
// file as a raw content prefix (not a trained dictionary) — the same
// mechanism zstd's own --patch-from flag uses.
package binarydiff

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/foldiff/foldiff/internal/foldifferr"
)

// windowSize is the zstd window size given to both encoder and
// decoder, capped at the library's encoder maximum. A chunk's old
// prefix is at most MaxChunkSize, so the window covers twice that: a
// full prefix plus a new chunk of the same size. New-side chunks are
// cut from the new file's size and are not bounded by MaxChunkSize;
// when one is larger, the start of the prefix can fall outside the
// window for matches late in that chunk.
const windowSize = zstd.MaxWindowSize

// MaxChunkSize bounds every old-side chunk to at most half the
// window, so a full old-side prefix plus a new-side chunk of up to the
// same size both fit within windowSize — the same ratio the original implementation uses
// between its chunk size and window_log, scaled down to the largest
// window klauspost/compress's encoder actually supports (the original
// ran 1 GiB chunks against a 2 GiB window; this runs 512 MiB chunks
// against a 1 GiB window). See DESIGN.md for why.
const MaxChunkSize = windowSize / 2

// ChunkCount returns ceil(oldSize / MaxChunkSize), minimum 1. It
// depends only on the old file's size — chunk boundaries on the new
// side are derived independently, not content-aligned.
func ChunkCount(oldSize uint64) uint64 {
	if oldSize == 0 {
		return 1
	}
	n := (oldSize + MaxChunkSize - 1) / MaxChunkSize
	if n == 0 {
		n = 1
	}
	return n
}

// ChunkBounds returns numChunks+1 boundary offsets into a file of the
// given size, such that chunk i spans [bounds[i], bounds[i+1]). Chunk
// i*size/numChunks arithmetic is used rather than floating point so
// that boundaries are exactly reproducible across platforms.
func ChunkBounds(numChunks uint64, size uint64) []uint64 {
	bounds := make([]uint64, numChunks+1)
	for i := uint64(0); i < numChunks; i++ {
		bounds[i] = i * size / numChunks
	}
	bounds[numChunks] = size
	return bounds
}

// Encode diffs new against old, writing a self-delimiting patch blob
// to dest: an 8-byte big-endian chunk count, then for each chunk an
// 8-byte big-endian compressed length followed by that many bytes of
// zstd data. old and new must be positioned such that seeking to
// absolute offsets reaches the start of their respective content.
func Encode(old, new io.ReadSeeker, oldSize, newSize uint64, dest io.Writer) error {
	numChunks := ChunkCount(oldSize)
	oldBounds := ChunkBounds(numChunks, oldSize)
	newBounds := ChunkBounds(numChunks, newSize)

	if err := writeU64(dest, numChunks); err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}

	for i := uint64(0); i < numChunks; i++ {
		dictChunk, err := readOldChunk(old, oldBounds[i], oldBounds[i+1])
		if err != nil {
			return err
		}

		compressed, err := compressChunk(dictChunk, io.NewSectionReader(asReaderAt(new), int64(newBounds[i]), int64(newBounds[i+1]-newBounds[i])))
		if err != nil {
			return foldifferr.New(foldifferr.Compression, err)
		}

		if err := writeU64(dest, uint64(len(compressed))); err != nil {
			return foldifferr.New(foldifferr.Io, err)
		}
		if _, err := dest.Write(compressed); err != nil {
			return foldifferr.New(foldifferr.Io, err)
		}
	}
	return nil
}

// Decode reverses Encode: it reads a patch blob produced by Encode
// from src and writes the reconstructed new content to dest. old must
// be the same content Encode was given, at the same size.
func Decode(old io.ReadSeeker, oldSize uint64, src io.Reader, dest io.Writer) error {
	numChunks, err := readU64(src)
	if err != nil {
		return foldifferr.New(foldifferr.Format, err)
	}
	if numChunks == 0 {
		return foldifferr.Newf(foldifferr.Format, "patch blob declares zero chunks")
	}
	oldBounds := ChunkBounds(numChunks, oldSize)

	for i := uint64(0); i < numChunks; i++ {
		dictChunk, err := readOldChunk(old, oldBounds[i], oldBounds[i+1])
		if err != nil {
			return err
		}

		chunkLen, err := readU64(src)
		if err != nil {
			return foldifferr.New(foldifferr.Format, err)
		}

		if err := decompressChunk(dictChunk, io.LimitReader(src, int64(chunkLen)), dest); err != nil {
			return foldifferr.New(foldifferr.Compression, err)
		}
	}
	return nil
}

// EncodeNewBlob compresses src as a single whole-file zstd frame, with
// no dictionary — used for New entries, which have no old-side
// content to reference.
func EncodeNewBlob(src io.Reader, dest io.Writer) error {
	enc, err := zstd.NewWriter(dest, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return foldifferr.New(foldifferr.Compression, err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return foldifferr.New(foldifferr.Compression, err)
	}
	if err := enc.Close(); err != nil {
		return foldifferr.New(foldifferr.Compression, err)
	}
	return nil
}

// DecodeNewBlob reverses EncodeNewBlob.
func DecodeNewBlob(src io.Reader, dest io.Writer) error {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return foldifferr.New(foldifferr.Compression, err)
	}
	defer dec.Close()
	if _, err := io.Copy(dest, dec); err != nil {
		return foldifferr.New(foldifferr.Compression, err)
	}
	return nil
}

func readOldChunk(old io.ReadSeeker, start, end uint64) ([]byte, error) {
	if _, err := old.Seek(int64(start), io.SeekStart); err != nil {
		return nil, foldifferr.New(foldifferr.Io, err)
	}
	buf := make([]byte, end-start)
	if _, err := io.ReadFull(old, buf); err != nil {
		return nil, foldifferr.New(foldifferr.Io, err)
	}
	return buf, nil
}

func compressChunk(dict []byte, chunk io.Reader) ([]byte, error) {
	var out countingBuffer
	enc, err := zstd.NewWriter(&out,
		zstd.WithEncoderDictRaw(0, dict),
		zstd.WithWindowSize(windowSize),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderCRC(false),
	)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(enc, chunk); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.buf, nil
}

func decompressChunk(dict []byte, compressed io.Reader, dest io.Writer) error {
	dec, err := zstd.NewReader(compressed,
		zstd.WithDecoderDictRaw(0, dict),
		zstd.WithDecoderMaxWindow(windowSize),
	)
	if err != nil {
		return err
	}
	defer dec.Close()
	_, err = io.Copy(dest, dec)
	return err
}

type countingBuffer struct{ buf []byte }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// asReaderAt adapts an io.ReadSeeker into an io.ReaderAt so the new
// chunk can be read via io.SectionReader without disturbing the
// caller's own seek position semantics. foldiff always hands Encode a
// plain *os.File here, which already implements ReaderAt.
func asReaderAt(r io.ReadSeeker) io.ReaderAt {
	if ra, ok := r.(io.ReaderAt); ok {
		return ra
	}
	return &seekerReaderAt{r: r}
}

// seekerReaderAt is a fallback for ReadSeekers that are not already
// ReaderAt (not used for *os.File, kept for completeness against
// in-memory test fixtures like *bytes.Reader, which do implement
// ReaderAt anyway, or io.ReadSeeker wrappers that don't).
type seekerReaderAt struct{ r io.ReadSeeker }

func (s *seekerReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.r, p)
}
