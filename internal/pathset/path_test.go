package pathset

import "testing"

func TestNewValidation(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"a/b/c", false},
		{"a", false},
		{"", true},
		{"/a", true},
		{"a/", true},
		{"a//b", true},
		{"a/./b", true},
		{"a/../b", true},
	}
	for _, tt := range tests {
		_, err := New(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestCompareReversedSegments(t *testing.T) {
	// a/b/c vs x/b/c: compare c, then b, then a vs x. Since the first
	// two segments from the end are equal, "a" vs "x" decides it, and
	// a < x.
	a := Path("a/b/c")
	x := Path("x/b/c")
	if got := Compare(a, x); got >= 0 {
		t.Errorf("Compare(a/b/c, x/b/c) = %d, want < 0", got)
	}

	// A path that is a pure suffix of another is "shorter" and sorts
	// first once all shared trailing segments compare equal.
	short := Path("c")
	long := Path("b/c")
	if got := Compare(short, long); got >= 0 {
		t.Errorf("Compare(c, b/c) = %d, want < 0", got)
	}

	if Compare(a, a) != 0 {
		t.Errorf("Compare(a, a) != 0")
	}
}

func TestSortPathsAdversarial(t *testing.T) {
	paths := []Path{"zz/readme.md", "aa/readme.md", "readme.md", "aa/zz/readme.md"}
	SortPaths(paths)

	want := []Path{"readme.md", "aa/readme.md", "zz/readme.md", "aa/zz/readme.md"}
	if len(paths) != len(want) {
		t.Fatalf("length mismatch: got %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q (full: %v)", i, paths[i], want[i], paths)
		}
	}
}
