// Package container implements the FLDF stream format: magic bytes,
// a MessagePack manifest, a framed new-blobs array, and a framed
// patches array. Every blob is written directly from its producer
// into the destination stream; nothing but a single new blob's length
// prefix is ever buffered.
package container

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/foldiff/foldiff/internal/foldifferr"
)

// Magic is the 4-byte marker every FLDF stream begins with.
const Magic = "FLDF"

// Writer serializes a Manifest and its blobs to an underlying stream.
// It requires Seek so a blob's length can be back-patched once the
// blob's compressed size is known, without buffering the blob itself.
type Writer struct {
	w io.WriteSeeker
}

// NewWriter wraps w for container serialization.
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the magic bytes and the MessagePack manifest.
func (cw *Writer) WriteHeader(m *Manifest) error {
	if _, err := cw.w.Write([]byte(Magic)); err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	if err := msgpack.NewEncoder(cw.w).Encode(m); err != nil {
		return foldifferr.New(foldifferr.Format, err)
	}
	return nil
}

// WriteNewBlobs writes the new_count prefix, then calls produce once
// per blob in index order; produce must stream exactly that blob's
// bytes into w.
func (cw *Writer) WriteNewBlobs(count int, produce func(index int, w io.Writer) error) error {
	if err := writeU64(cw.w, uint64(count)); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := cw.writeLengthFramed(func(w io.Writer) error { return produce(i, w) }); err != nil {
			return err
		}
	}
	return nil
}

// WritePatches writes the patch_count prefix, then calls produce once
// per patch in index order; produce is expected to write a
// self-delimiting patch blob (as binarydiff.Encode does) directly.
func (cw *Writer) WritePatches(count int, produce func(index int, w io.Writer) error) error {
	if err := writeU64(cw.w, uint64(count)); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := produce(i, cw.w); err != nil {
			return err
		}
	}
	return nil
}

// writeLengthFramed reserves 8 bytes, invokes produce to stream
// content directly to w, then seeks back to fill in the length that
// was just discovered.
func (cw *Writer) writeLengthFramed(produce func(w io.Writer) error) error {
	start, err := cw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	if err := writeU64(cw.w, 0); err != nil {
		return err
	}

	counter := &countingWriter{w: cw.w}
	if err := produce(counter); err != nil {
		return err
	}

	end, err := cw.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	if _, err := cw.w.Seek(start, io.SeekStart); err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	if err := writeU64(cw.w, uint64(counter.n)); err != nil {
		return err
	}
	if _, err := cw.w.Seek(end, io.SeekStart); err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	return nil
}

// Reader deserializes a Manifest and streams blobs back out in order.
type Reader struct {
	r io.Reader
}

// NewReader wraps r for container deserialization. A reader that is
// not an io.ByteScanner is wrapped in a bufio.Reader, so the manifest
// decoder and the blob framing share one buffer and no bytes after the
// manifest are lost to the decoder's read-ahead.
func NewReader(r io.Reader) *Reader {
	if _, ok := r.(io.ByteScanner); !ok {
		r = bufio.NewReader(r)
	}
	return &Reader{r: r}
}

// ReadHeader validates the magic bytes and decodes the manifest.
func (cr *Reader) ReadHeader() (*Manifest, error) {
	var magic [4]byte
	if _, err := io.ReadFull(cr.r, magic[:]); err != nil {
		return nil, foldifferr.New(foldifferr.Format, err)
	}
	if string(magic[:]) != Magic {
		return nil, foldifferr.Newf(foldifferr.Format, "bad magic bytes %q, want %q", magic[:], Magic)
	}

	var m Manifest
	if err := msgpack.NewDecoder(cr.r).Decode(&m); err != nil {
		return nil, foldifferr.New(foldifferr.Format, err)
	}
	if !CompatibleVersion(m.Version) {
		return nil, foldifferr.Newf(foldifferr.Format, "unsupported manifest version %d.%d.%d%c", m.Version.Major, m.Version.Minor, m.Version.Patch, m.Version.Flag)
	}
	return &m, nil
}

// ReadNewBlobs reads the new_count prefix and, for each blob in
// order, hands consume a reader bounded to exactly that blob's bytes.
func (cr *Reader) ReadNewBlobs(consume func(index int, blob io.Reader) error) error {
	count, err := readU64(cr.r)
	if err != nil {
		return foldifferr.New(foldifferr.Format, err)
	}
	for i := uint64(0); i < count; i++ {
		blobLen, err := readU64(cr.r)
		if err != nil {
			return foldifferr.New(foldifferr.Format, err)
		}
		lr := io.LimitReader(cr.r, int64(blobLen))
		if err := consume(int(i), lr); err != nil {
			return err
		}
		if _, err := io.Copy(io.Discard, lr); err != nil {
			return foldifferr.New(foldifferr.Io, err)
		}
	}
	return nil
}

// ReadPatches reads the patch_count prefix and, for each patch in
// order, hands consume the raw stream positioned at that patch's
// self-delimiting blob (consume must read exactly its framing, as
// binarydiff.Decode does).
func (cr *Reader) ReadPatches(consume func(index int, r io.Reader) error) error {
	count, err := readU64(cr.r)
	if err != nil {
		return foldifferr.New(foldifferr.Format, err)
	}
	for i := uint64(0); i < count; i++ {
		if err := consume(int(i), cr.r); err != nil {
			return err
		}
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	if _, err := w.Write(b[:]); err != nil {
		return foldifferr.New(foldifferr.Io, err)
	}
	return nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
