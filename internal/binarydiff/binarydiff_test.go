package binarydiff

import (
	"bytes"
	"testing"
)

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size uint64
		want uint64
	}{
		{0, 1},
		{1, 1},
		{MaxChunkSize, 1},
		{MaxChunkSize + 1, 2},
		{MaxChunkSize * 3, 3},
	}
	for _, c := range cases {
		if got := ChunkCount(c.size); got != c.want {
			t.Errorf("ChunkCount(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

// Chunk boundaries must be reproducible: the same (numChunks, size)
// pair always yields the same bounds, independent of call order —
// the property BinaryDiffer's encoder and decoder both rely on to
// agree on dictionary chunk extents without exchanging them.
func TestChunkBoundsReproducible(t *testing.T) {
	b1 := ChunkBounds(3, 100)
	b2 := ChunkBounds(3, 100)
	if len(b1) != 4 {
		t.Fatalf("len(bounds) = %d, want 4", len(b1))
	}
	for i := range b1 {
		if b1[i] != b2[i] {
			t.Fatalf("bounds[%d] differ across calls: %d != %d", i, b1[i], b2[i])
		}
	}
	if b1[0] != 0 || b1[3] != 100 {
		t.Errorf("bounds must start at 0 and end at size: %v", b1)
	}
}

func TestChunkBoundsSingleChunkSpansWholeFile(t *testing.T) {
	bounds := ChunkBounds(1, 12345)
	if len(bounds) != 2 || bounds[0] != 0 || bounds[1] != 12345 {
		t.Fatalf("unexpected bounds: %v", bounds)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	oldData := bytes.Repeat([]byte{0x00}, 100)
	newData := append(bytes.Repeat([]byte{0x00}, 50), bytes.Repeat([]byte{0x01}, 50)...)

	var patch bytes.Buffer
	oldR := bytes.NewReader(oldData)
	newR := bytes.NewReader(newData)
	if err := Encode(oldR, newR, uint64(len(oldData)), uint64(len(newData)), &patch); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out bytes.Buffer
	oldR2 := bytes.NewReader(oldData)
	if err := Decode(oldR2, uint64(len(oldData)), &patch, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !bytes.Equal(out.Bytes(), newData) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d bytes", out.Len(), len(newData))
	}
}

func TestEncodeDecodeRoundTripEmptyOld(t *testing.T) {
	var patch bytes.Buffer
	oldR := bytes.NewReader(nil)
	newR := bytes.NewReader([]byte("entirely new content"))
	if err := Encode(oldR, newR, 0, uint64(newR.Len()), &patch); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out bytes.Buffer
	if err := Decode(bytes.NewReader(nil), 0, &patch, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.String() != "entirely new content" {
		t.Fatalf("got %q", out.String())
	}
}

func TestEncodeDeterministic(t *testing.T) {
	oldData := bytes.Repeat([]byte("abcdefgh"), 1000)
	newData := append(bytes.Repeat([]byte("abcdefgh"), 900), bytes.Repeat([]byte("zzzzzzzz"), 100)...)

	encodeOnce := func() []byte {
		var patch bytes.Buffer
		_ = Encode(bytes.NewReader(oldData), bytes.NewReader(newData), uint64(len(oldData)), uint64(len(newData)), &patch)
		return patch.Bytes()
	}

	p1 := encodeOnce()
	p2 := encodeOnce()
	if !bytes.Equal(p1, p2) {
		t.Fatalf("Encode not deterministic across runs")
	}
}
