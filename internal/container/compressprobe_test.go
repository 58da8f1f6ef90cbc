package container

import (
	"bytes"
	"testing"
)

func TestLikelyIncompressibleOnRepeatedText(t *testing.T) {
	sample := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)
	if LikelyIncompressible(sample) {
		t.Errorf("highly repetitive text flagged as incompressible")
	}
}

func TestLikelyIncompressibleOnEmptySample(t *testing.T) {
	if LikelyIncompressible(nil) {
		t.Errorf("empty sample should not be flagged incompressible")
	}
}
