package container

import (
	"bytes"
	"io"
	"testing"
)

// memFile is a minimal in-memory io.WriteSeeker/io.ReadSeeker used to
// exercise the back-patching length-prefix logic without touching a
// real file.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.buf))
	}
	m.pos = base + offset
	return m.pos, nil
}

func TestWriteReadHeaderRoundTrip(t *testing.T) {
	m := &Manifest{
		Version:   CurrentVersion,
		Untouched: []UntouchedEntry{{Path: "a.txt", Hash: 1}},
	}

	f := &memFile{}
	w := NewWriter(f)
	if err := w.WriteHeader(m); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteNewBlobs(0, nil); err != nil {
		t.Fatalf("WriteNewBlobs: %v", err)
	}
	if err := w.WritePatches(0, nil); err != nil {
		t.Fatalf("WritePatches: %v", err)
	}

	r := NewReader(bytes.NewReader(f.buf))
	got, err := r.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if len(got.Untouched) != 1 || got.Untouched[0].Path != "a.txt" || got.Untouched[0].Hash != 1 {
		t.Fatalf("unexpected manifest: %+v", got)
	}

	var newCount int
	if err := r.ReadNewBlobs(func(i int, blob io.Reader) error { newCount++; return nil }); err != nil {
		t.Fatalf("ReadNewBlobs: %v", err)
	}
	if newCount != 0 {
		t.Errorf("newCount = %d, want 0", newCount)
	}
}

func TestWriteNewBlobsRoundTrip(t *testing.T) {
	blobs := [][]byte{[]byte("hello"), []byte("a much longer blob of bytes here")}

	f := &memFile{}
	w := NewWriter(f)
	if err := w.WriteHeader(&Manifest{Version: CurrentVersion}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteNewBlobs(len(blobs), func(i int, dst io.Writer) error {
		_, err := dst.Write(blobs[i])
		return err
	}); err != nil {
		t.Fatalf("WriteNewBlobs: %v", err)
	}
	if err := w.WritePatches(0, nil); err != nil {
		t.Fatalf("WritePatches: %v", err)
	}

	r := NewReader(bytes.NewReader(f.buf))
	if _, err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	var got [][]byte
	if err := r.ReadNewBlobs(func(i int, blob io.Reader) error {
		b, err := io.ReadAll(blob)
		got = append(got, b)
		return err
	}); err != nil {
		t.Fatalf("ReadNewBlobs: %v", err)
	}

	if len(got) != len(blobs) {
		t.Fatalf("got %d blobs, want %d", len(got), len(blobs))
	}
	for i := range blobs {
		if !bytes.Equal(got[i], blobs[i]) {
			t.Errorf("blob %d = %q, want %q", i, got[i], blobs[i])
		}
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXXnotamanifest")
	_, err := NewReader(buf).ReadHeader()
	if err == nil {
		t.Fatalf("ReadHeader accepted bad magic")
	}
}

func TestCompatibleVersion(t *testing.T) {
	cases := []struct {
		v    Version
		want bool
	}{
		{Version{1, 1, 0, 'r'}, true},
		{Version{1, 0, 5, 'r'}, true},
		{Version{0, 9, 0, 'r'}, true},
		{Version{1, 2, 0, 'r'}, false},
		{Version{2, 0, 0, 'r'}, false},
	}
	for _, c := range cases {
		if got := CompatibleVersion(c.v); got != c.want {
			t.Errorf("CompatibleVersion(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}
