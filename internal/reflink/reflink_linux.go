//go:build linux

// Package reflink clones file content using the filesystem's
// copy-on-write primitive when available, falling back to a plain
// byte copy otherwise. It is a performance optimization only; callers
// must not depend on whether a clone or a copy actually occurred.
package reflink

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Clone materializes dst as a copy of src's content, preferring a
// reflink (FICLONE) when the underlying filesystem supports it.
func Clone(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("reflink: open %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("reflink: create %s: %w", dst, err)
	}
	defer dstFile.Close()

	if err := unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd())); err == nil {
		return nil
	} else if !cloneUnsupported(err) {
		return fmt.Errorf("reflink: clone %s -> %s: %w", src, dst, err)
	}

	// Fall through to a plain copy: either cross-device, or the
	// filesystem doesn't implement FICLONE at all.
	if _, err := dstFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("reflink: seek %s: %w", dst, err)
	}
	if err := dstFile.Truncate(0); err != nil {
		return fmt.Errorf("reflink: truncate %s: %w", dst, err)
	}
	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("reflink: seek %s: %w", src, err)
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("reflink: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

func cloneUnsupported(err error) bool {
	return errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.EXDEV) ||
		errors.Is(err, unix.ENOTTY) ||
		errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.EINVAL)
}
