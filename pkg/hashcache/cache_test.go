package hashcache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/logging"
	"github.com/corediff/corediff/pkg/vfs/local"
)

func TestCacheLookupStore(t *testing.T) {
	c := New()
	modTime := time.Unix(1000, 0)

	if _, ok := c.Lookup("inst", "a.txt", 5, modTime); ok {
		t.Fatal("expected miss on empty cache")
	}

	var digest diffcore.Digest
	digest[0] = 0xAB
	c.Store("inst", "a.txt", 5, modTime, digest)

	got, ok := c.Lookup("inst", "a.txt", 5, modTime)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if !got.Equal(digest) {
		t.Fatalf("got digest %v, want %v", got, digest)
	}

	if _, ok := c.Lookup("inst", "a.txt", 6, modTime); ok {
		t.Fatal("expected miss on size mismatch")
	}
	if _, ok := c.Lookup("inst", "a.txt", 5, time.Unix(1001, 0)); ok {
		t.Fatal("expected miss on mtime mismatch")
	}
	if c.Len() != 1 {
		t.Fatalf("got len %d, want 1", c.Len())
	}
}

func TestHashReaderDeterministic(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	cancelled := make(chan struct{})

	d1, err := hashReader(bytes.NewReader(content), cancelled)
	if err != nil {
		t.Fatalf("hashReader: %v", err)
	}
	d2, err := hashReader(bytes.NewReader(content), cancelled)
	if err != nil {
		t.Fatalf("hashReader: %v", err)
	}
	if !d1.Equal(d2) {
		t.Fatal("expected identical content to produce identical digests")
	}

	d3, err := hashReader(bytes.NewReader([]byte("different content")), cancelled)
	if err != nil {
		t.Fatalf("hashReader: %v", err)
	}
	if d1.Equal(d3) {
		t.Fatal("expected different content to produce different digests")
	}
}

func TestCacheDigestPopulatesAndReuses(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	defer fs.Close()

	ctx := context.Background()
	info, err := fs.Stat(ctx, "file.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	c := New()
	cancelled := make(chan struct{})

	digest, err := c.Digest(ctx, fs, "file.txt", info, cancelled)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected cache populated after Digest, got len %d", c.Len())
	}

	again, err := c.Digest(ctx, fs, "file.txt", info, cancelled)
	if err != nil {
		t.Fatalf("Digest (cached): %v", err)
	}
	if !digest.Equal(again) {
		t.Fatal("expected cached digest to match freshly computed digest")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.bin")
	logger := logging.RootLogger

	c := New()
	var d1, d2 diffcore.Digest
	d1[0], d2[1] = 1, 2
	c.Store("inst-a", "one.txt", 10, time.Unix(100, 0), d1)
	c.Store("inst-b", "two.txt", 20, time.Unix(200, 0), d2)

	if err := c.Save(cachePath, logger); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(cachePath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("got len %d, want 2", loaded.Len())
	}

	got, ok := loaded.Lookup("inst-a", "one.txt", 10, time.Unix(100, 0))
	if !ok || !got.Equal(d1) {
		t.Fatal("round-tripped entry inst-a/one.txt did not match")
	}
	got, ok = loaded.Lookup("inst-b", "two.txt", 20, time.Unix(200, 0))
	if !ok || !got.Equal(d2) {
		t.Fatal("round-tripped entry inst-b/two.txt did not match")
	}
}

func TestLoadMissingFileReturnsEmptyCache(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, "nonexistent.bin"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got len %d", c.Len())
	}
}

func TestLoadCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.bin")
	if err := os.WriteFile(path, []byte("not a cache file"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error loading corrupted cache")
	}
}

func TestLoadOrEmptyFallsBackOnCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.bin")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := LoadOrEmpty(path, logging.RootLogger)
	if c.Len() != 0 {
		t.Fatalf("expected empty cache on corrupted load, got len %d", c.Len())
	}
}

func TestHashMany(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a.txt", "b.txt", "c.txt"}
	for i, name := range names {
		content := bytes.Repeat([]byte{byte('a' + i)}, 16)
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	fs, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	defer fs.Close()

	ctx := context.Background()
	var jobs []Job
	for _, name := range names {
		info, err := fs.Stat(ctx, name)
		if err != nil {
			t.Fatalf("Stat(%s): %v", name, err)
		}
		jobs = append(jobs, Job{Path: name, Info: info})
	}

	c := New()
	cancelled := make(chan struct{})
	results := c.HashMany(ctx, fs, jobs, 2, cancelled)

	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	seen := make(map[string]diffcore.Digest)
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("HashMany job %s failed: %v", r.Path, r.Err)
		}
		seen[r.Path] = r.Digest
	}
	if len(seen) != len(names) {
		t.Fatalf("got %d distinct paths, want %d", len(seen), len(names))
	}
	if seen["a.txt"].Equal(seen["b.txt"]) {
		t.Fatal("expected distinct file contents to produce distinct digests")
	}
	if c.Len() != len(names) {
		t.Fatalf("expected cache populated by HashMany, got len %d", c.Len())
	}
}
