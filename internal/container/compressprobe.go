package container

import "github.com/pierrec/lz4/v4"

// probeSampleSize bounds how much of a New blob's source is sampled
// before committing to the (always-performed) zstd compression pass.
const probeSampleSize = 64 * 1024

// LikelyIncompressible runs a cheap LZ4 pass over sample (a prefix of
// a New entry's content) to estimate whether zstd's heavier match
// finder is worth its CPU cost. The content is zstd-compressed either
// way — the FLDF format has no "stored, uncompressed" blob kind — this
// only drives --stats reporting of files zstd is unlikely to shrink.
func LikelyIncompressible(sample []byte) bool {
	if len(sample) > probeSampleSize {
		sample = sample[:probeSampleSize]
	}
	if len(sample) == 0 {
		return false
	}

	dst := make([]byte, lz4.CompressBlockBound(len(sample)))
	var c lz4.Compressor
	n, err := c.CompressBlock(sample, dst)
	if err != nil {
		return false
	}
	if n == 0 {
		// lz4 reports 0 when the input didn't compress at all.
		return true
	}
	ratio := float64(n) / float64(len(sample))
	return ratio > 0.95
}
