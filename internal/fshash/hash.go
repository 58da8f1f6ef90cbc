// Package fshash provides foldiff's content hash (a streaming
// XXH3-64 digest) and the lightweight content-type sniffing used to
// derive a FileRecord's ordering tag.
package fshash

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/zeebo/xxh3"
)

// Hash is the 64-bit XXH3 digest of a file's full content. It is the
// sole equality test for "same content" throughout foldiff — two
// files with equal Hash are treated as identical regardless of any
// other metadata.
type Hash uint64

// HashReader streams r through an XXH3-64 state without buffering the
// content whole.
func HashReader(r io.Reader) (Hash, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return Hash(h.Sum64()), nil
}

// sniffLimit bounds how much of a file is read for type-tag
// detection. A few kilobytes is enough for magic-byte sniffers to
// recognize nearly every common container format.
const sniffLimit = 8 * 1024

// DetectTypeTag inspects up to sniffLimit bytes of r (which must be
// positioned at the start of the file) using magic-byte detection. If
// detection fails to recognize the content, fallback is used as the
// tag (the caller passes the lowercased extension, or "" if the path
// has none). The returned tag is a short string used only for
// ordering — it carries no semantic weight beyond grouping
// similarly-typed blobs together in the container.
func DetectTypeTag(r io.Reader, fallback string) (string, error) {
	br := bufio.NewReaderSize(r, sniffLimit)
	peek, err := br.Peek(sniffLimit)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", err
	}

	contentType := http.DetectContentType(peek)
	if tag := tagFromContentType(contentType); tag != "" {
		return tag, nil
	}
	return fallback, nil
}

// tagFromContentType maps a net/http-detected MIME type to a short
// tag, or "" if the detected type is the generic fallback
// ("application/octet-stream") that http.DetectContentType returns
// for anything it doesn't recognize.
func tagFromContentType(contentType string) string {
	contentType, _, _ = strings.Cut(contentType, ";")
	switch contentType {
	case "application/octet-stream", "":
		return ""
	}
	if idx := strings.LastIndex(contentType, "/"); idx >= 0 {
		return contentType[idx+1:]
	}
	return contentType
}
