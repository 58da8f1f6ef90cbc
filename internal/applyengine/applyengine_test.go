package applyengine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/foldiff/foldiff/internal/binarydiff"
	"github.com/foldiff/foldiff/internal/classifier"
	"github.com/foldiff/foldiff/internal/container"
	"github.com/foldiff/foldiff/internal/scanner"
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

// buildContainer scans oldRoot/newRoot, classifies the change, and
// writes a complete FLDF container to a fresh temp file, returning
// its path. This is the "diff" side of the pipeline, assembled inline
// since cmd/foldiff's driver isn't what ApplyEngine itself depends on.
func buildContainer(t *testing.T, oldRoot, newRoot string) string {
	t.Helper()
	ctx := context.Background()

	oldRecords, err := scanner.Scan(ctx, oldRoot, workpool.New(ctx, 4))
	if err != nil {
		t.Fatalf("Scan(old): %v", err)
	}
	newRecords, err := scanner.Scan(ctx, newRoot, workpool.New(ctx, 4))
	if err != nil {
		t.Fatalf("Scan(new): %v", err)
	}

	cs := classifier.Classify(oldRecords, newRecords)
	m := container.FromChangeSet(cs)

	out, err := os.CreateTemp(t.TempDir(), "foldiff-*.fldf")
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()

	w := container.NewWriter(out)
	if err := w.WriteHeader(m); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	if err := w.WriteNewBlobs(m.NewBlobLen(), func(i int, dst io.Writer) error {
		target := cs.NewBlobs[i]
		f, err := os.Open(target.Path.ToOSPath(newRoot, osSeparator))
		if err != nil {
			return err
		}
		defer f.Close()
		return binarydiff.EncodeNewBlob(f, dst)
	}); err != nil {
		t.Fatalf("WriteNewBlobs: %v", err)
	}

	if err := w.WritePatches(len(cs.Patches), func(i int, dst io.Writer) error {
		target := cs.Patches[i]
		oldFile, err := os.Open(target.Path.ToOSPath(oldRoot, osSeparator))
		if err != nil {
			return err
		}
		defer oldFile.Close()
		newFile, err := os.Open(target.Path.ToOSPath(newRoot, osSeparator))
		if err != nil {
			return err
		}
		defer newFile.Close()

		oldStat, _ := oldFile.Stat()
		newStat, _ := newFile.Stat()
		return binarydiff.Encode(oldFile, newFile, uint64(oldStat.Size()), uint64(newStat.Size()), dst)
	}); err != nil {
		t.Fatalf("WritePatches: %v", err)
	}

	return out.Name()
}

func assertTreesEqual(t *testing.T, want, got string) {
	t.Helper()
	wantEntries, err := os.ReadDir(want)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range wantEntries {
		if e.IsDir() {
			assertTreesEqual(t, filepath.Join(want, e.Name()), filepath.Join(got, e.Name()))
			continue
		}
		wb, err := os.ReadFile(filepath.Join(want, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		gb, err := os.ReadFile(filepath.Join(got, e.Name()))
		if err != nil {
			t.Fatalf("missing %s in materialized tree: %v", e.Name(), err)
		}
		if string(wb) != string(gb) {
			t.Errorf("%s: got %q, want %q", e.Name(), gb, wb)
		}
	}
}

func TestApplyRoundTripMixedChanges(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, oldRoot, "untouched.txt", "same forever")
	writeFile(t, newRoot, "untouched.txt", "same forever")

	writeFile(t, oldRoot, "old-name.txt", "renamed content")
	writeFile(t, newRoot, "new-name.txt", "renamed content")

	writeFile(t, oldRoot, "deleted.txt", "going away")

	writeFile(t, newRoot, "created.txt", "brand new")

	writeFile(t, oldRoot, "patched.bin", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	writeFile(t, newRoot, "patched.bin", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaabb")

	fldfPath := buildContainer(t, oldRoot, newRoot)

	f, err := os.Open(fldfPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx := context.Background()
	pool := workpool.New(ctx, 4)
	if err := Apply(ctx, oldRoot, container.NewReader(f), destRoot, pool); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertTreesEqual(t, newRoot, destRoot)

	if _, err := os.Stat(filepath.Join(destRoot, "deleted.txt")); !os.IsNotExist(err) {
		t.Errorf("deleted.txt should not exist in materialized tree")
	}
	if _, err := os.Stat(filepath.Join(destRoot, "old-name.txt")); !os.IsNotExist(err) {
		t.Errorf("old-name.txt should not exist in materialized tree")
	}
}

func TestApplyIdenticalTreesProducesUntouchedOnly(t *testing.T) {
	oldRoot := t.TempDir()
	newRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, oldRoot, "a.txt", "hello")
	writeFile(t, newRoot, "a.txt", "hello")

	fldfPath := buildContainer(t, oldRoot, newRoot)
	f, err := os.Open(fldfPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx := context.Background()
	if err := Apply(ctx, oldRoot, container.NewReader(f), destRoot, workpool.New(ctx, 2)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertTreesEqual(t, newRoot, destRoot)
}
