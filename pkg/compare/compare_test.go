package compare

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/hashcache"
	"github.com/corediff/corediff/pkg/scan"
	"github.com/corediff/corediff/pkg/vfs/local"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		full := filepath.Join(root, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func scanDir(t *testing.T, dir string) (*local.FS, *diffcore.FileEntry) {
	t.Helper()
	fs, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	root, err := scan.Scan(context.Background(), fs, scan.Options{}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return fs, root
}

func statusOf(node *diffcore.DiffNode, path string) (diffcore.DiffStatus, bool) {
	var found *diffcore.DiffNode
	node.Walk(func(n *diffcore.DiffNode) bool {
		if n.Path == path {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return 0, false
	}
	return found.Status, true
}

// TestCompareIdenticalsDifferentsOrphans checks that matching, mismatched,
// and one-sided paths classify as Same, Different, OrphanLeft, and
// OrphanRight respectively.
func TestCompareIdenticalsDifferentsOrphans(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	writeTree(t, leftDir, map[string]string{
		"a.txt": "hi",
		"b.txt": "xx",
		"c.txt": "same",
	})
	writeTree(t, rightDir, map[string]string{
		"a.txt": "hi",
		"b.txt": "yy",
		"d.txt": "diff",
	})

	leftFS, leftTree := scanDir(t, leftDir)
	rightFS, rightTree := scanDir(t, rightDir)
	defer leftFS.Close()
	defer rightFS.Close()

	tree, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, hashcache.New(), Options{VerifyHashes: true}, nil, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	cases := map[string]diffcore.DiffStatus{
		"a.txt": diffcore.DiffStatusSame,
		"b.txt": diffcore.DiffStatusDifferent,
		"c.txt": diffcore.DiffStatusOrphanLeft,
		"d.txt": diffcore.DiffStatusOrphanRight,
	}
	for path, want := range cases {
		got, ok := statusOf(tree, path)
		if !ok {
			t.Errorf("%s: not found in diff tree", path)
			continue
		}
		if got != want {
			t.Errorf("%s: got %v, want %v", path, got, want)
		}
	}
}

// TestCompareSizeShortCircuit checks that a size mismatch classifies as
// Different without any hashing.
func TestCompareSizeShortCircuit(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(leftDir, "a.bin"), make([]byte, 1000000), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rightDir, "a.bin"), make([]byte, 1000001), 0o644); err != nil {
		t.Fatal(err)
	}

	leftFS, leftTree := scanDir(t, leftDir)
	rightFS, rightTree := scanDir(t, rightDir)
	defer leftFS.Close()
	defer rightFS.Close()

	cache := hashcache.New()
	tree, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, cache, Options{VerifyHashes: true}, nil, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got, _ := statusOf(tree, "a.bin"); got != diffcore.DiffStatusDifferent {
		t.Errorf("got %v, want Different", got)
	}
	if cache.Len() != 0 {
		t.Errorf("expected no cache entries from a size mismatch, got %d", cache.Len())
	}
}

// TestCompareUncheckedVsSame checks that an equal-size/equal-mtime pair
// classifies as Unchecked when hash verification is disabled, and as
// Same when it is enabled.
func TestCompareUncheckedVsSame(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	writeTree(t, leftDir, map[string]string{"a.txt": "hello"})
	writeTree(t, rightDir, map[string]string{"a.txt": "hello"})

	mtime := time.Unix(1700000000, 0)
	if err := os.Chtimes(filepath.Join(leftDir, "a.txt"), mtime, mtime); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(filepath.Join(rightDir, "a.txt"), mtime, mtime); err != nil {
		t.Fatal(err)
	}

	leftFS, leftTree := scanDir(t, leftDir)
	rightFS, rightTree := scanDir(t, rightDir)
	defer leftFS.Close()
	defer rightFS.Close()

	notVerified, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, hashcache.New(), Options{VerifyHashes: false}, nil, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got, _ := statusOf(notVerified, "a.txt"); got != diffcore.DiffStatusUnchecked {
		t.Errorf("verify_hashes=false: got %v, want Unchecked", got)
	}

	verified, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, hashcache.New(), Options{VerifyHashes: true}, nil, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got, _ := statusOf(verified, "a.txt"); got != diffcore.DiffStatusSame {
		t.Errorf("verify_hashes=true: got %v, want Same", got)
	}
}

// TestCompareCacheHit checks that a second comparison against an
// untouched tree does not grow the hash cache further.
func TestCompareCacheHit(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	writeTree(t, leftDir, map[string]string{"a.txt": "hello", "b.txt": "world"})
	writeTree(t, rightDir, map[string]string{"a.txt": "hello", "b.txt": "world"})

	leftFS, leftTree := scanDir(t, leftDir)
	rightFS, rightTree := scanDir(t, rightDir)
	defer leftFS.Close()
	defer rightFS.Close()

	cache := hashcache.New()
	if _, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, cache, Options{VerifyHashes: true}, nil, nil); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	populated := cache.Len()
	if populated == 0 {
		t.Fatal("expected cache to be populated after a verified comparison")
	}

	leftTree2, err := scan.Scan(context.Background(), leftFS, scan.Options{}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	rightTree2, err := scan.Scan(context.Background(), rightFS, scan.Options{}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := Compare(context.Background(), leftFS, rightFS, leftTree2, rightTree2, cache, Options{VerifyHashes: true}, nil, nil); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cache.Len() != populated {
		t.Errorf("second comparison changed cache size: got %d, want %d", cache.Len(), populated)
	}
}

// TestCompareLargeFileStreaming checks that files at or above the stream
// threshold are compared by streaming rather than full hashing, and that
// a single differing tail byte is still detected.
func TestCompareLargeFileStreaming(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()

	size := 3 * 1024 * 1024
	leftData := make([]byte, size)
	rightData := make([]byte, size)
	copy(rightData, leftData)
	rightData[size-1] = 0xFF

	if err := os.WriteFile(filepath.Join(leftDir, "big.bin"), leftData, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rightDir, "big.bin"), rightData, 0o644); err != nil {
		t.Fatal(err)
	}

	leftFS, leftTree := scanDir(t, leftDir)
	rightFS, rightTree := scanDir(t, rightDir)
	defer leftFS.Close()
	defer rightFS.Close()

	cache := hashcache.New()
	opts := Options{VerifyHashes: true, StreamThreshold: 1024 * 1024}
	tree, err := Compare(context.Background(), leftFS, rightFS, leftTree, rightTree, cache, opts, nil, nil)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got, _ := statusOf(tree, "big.bin"); got != diffcore.DiffStatusDifferent {
		t.Errorf("got %v, want Different", got)
	}
	if cache.Len() != 0 {
		t.Error("streaming comparison should not populate the hash cache")
	}
}

// TestStreamEqual exercises the streaming comparator directly.
func TestStreamEqual(t *testing.T) {
	leftDir, rightDir := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(leftDir, "f"), []byte("abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rightDir, "f"), []byte("abcdef"), 0o644); err != nil {
		t.Fatal(err)
	}
	leftFS, err := local.New(leftDir)
	if err != nil {
		t.Fatal(err)
	}
	defer leftFS.Close()
	rightFS, err := local.New(rightDir)
	if err != nil {
		t.Fatal(err)
	}
	defer rightFS.Close()

	equal, err := StreamEqual(context.Background(), leftFS, rightFS, "f", "f", nil)
	if err != nil {
		t.Fatalf("StreamEqual: %v", err)
	}
	if !equal {
		t.Error("expected identical files to compare equal")
	}
}
