package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/foldiff/foldiff/internal/pathset"
	"github.com/foldiff/foldiff/internal/workpool"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "sub/b.txt", "world")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	pool := workpool.New(context.Background(), 4)
	records, err := Scan(context.Background(), root, pool)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Scan returned %d records, want 2: %v", len(records), records)
	}

	a, ok := records[pathset.Path("a.txt")]
	if !ok {
		t.Fatalf("missing a.txt")
	}
	if a.Size != 5 {
		t.Errorf("a.txt size = %d, want 5", a.Size)
	}

	if _, ok := records[pathset.Path("sub/b.txt")]; !ok {
		t.Errorf("missing sub/b.txt")
	}

	// The empty directory must not produce an entry.
	for p := range records {
		if string(p) == "empty" {
			t.Errorf("empty directory produced a record")
		}
	}
}

func TestScanSymlinkIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "content")
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(filepath.Join(root, "real.txt"), link); err != nil {
		t.Skipf("symlinks unsupported on this platform: %v", err)
	}

	pool := workpool.New(context.Background(), 4)
	_, err := Scan(context.Background(), root, pool)
	if err == nil {
		t.Fatalf("Scan succeeded despite symlink")
	}
}

func TestScanIdenticalHashesAreEqual(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same content")
	writeFile(t, root, "b.txt", "same content")

	pool := workpool.New(context.Background(), 4)
	records, err := Scan(context.Background(), root, pool)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if records["a.txt"].Hash != records["b.txt"].Hash {
		t.Errorf("identical content produced different hashes")
	}
}
