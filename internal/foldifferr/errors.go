// Package foldifferr defines foldiff's error taxonomy. Every error
// that crosses a component boundary is one of the six kinds here, so
// the top-level command can print one diagnostic line and choose an
// exit code without inspecting arbitrary error chains.
package foldifferr

import (
	"errors"
	"fmt"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind int

const (
	// Input covers a missing root, an unreadable file, a symbolic
	// link encountered during a scan, or a path that cannot be
	// encoded as UTF-8.
	Input Kind = iota

	// Format covers a bad magic number, a manifest that fails to
	// parse, an unsupported manifest version, or framing that runs
	// past the end of the stream.
	Format

	// Integrity covers a hash mismatch, either on old-side
	// validation or on the new-side post-condition check.
	Integrity

	// Compression covers a zstd failure during encode or decode.
	Compression

	// Io covers an underlying filesystem or stream failure not
	// already covered by one of the other kinds.
	Io

	// Cancelled covers a user-requested abort.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Input:
		return "InputError"
	case Format:
		return "FormatError"
	case Integrity:
		return "IntegrityError"
	case Compression:
		return "CompressionError"
	case Io:
		return "IoError"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a foldiff taxonomy error. Path is empty when the error is
// not associated with a single file.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a foldiff error of the given kind with no
// associated path.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithPath wraps err as a foldiff error of the given kind, associated
// with path.
func WithPath(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// As reports whether err is (or wraps) a foldiff *Error and, if so,
// returns it.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a foldiff error, or Io
// otherwise — every error that escapes to the top level is treated as
// an I/O failure by default, since that is the least specific, most
// conservative exit code.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return Io
}

// IsInput, IsFormat, IsIntegrity, IsCompression, IsIo, and IsCancelled
// are convenience predicates mirroring patterns like
// github.IsNotFound in the ambient stack this module grew out of.

func IsInput(err error) bool      { return KindOf(err) == Input }
func IsFormat(err error) bool     { return KindOf(err) == Format }
func IsIntegrity(err error) bool  { return KindOf(err) == Integrity }
func IsCompression(err error) bool { return KindOf(err) == Compression }
func IsIo(err error) bool         { return KindOf(err) == Io }
func IsCancelled(err error) bool  { return KindOf(err) == Cancelled }
