package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/corediff/corediff/pkg/vfs"
)

func TestStatReportsSymlinkByDefault(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer fs.Close()

	info, err := fs.Stat(context.Background(), "link.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Kind != vfs.KindSymlink {
		t.Errorf("got kind %v, want KindSymlink", info.Kind)
	}
	if info.LinkTarget != target {
		t.Errorf("got link target %q, want %q", info.LinkTarget, target)
	}
}

func TestStatFollowsSymlinkWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fs, err := New(dir, WithFollowSymlinks(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer fs.Close()

	info, err := fs.Stat(context.Background(), "link.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Kind != vfs.KindFile {
		t.Errorf("got kind %v, want KindFile (resolved through symlink)", info.Kind)
	}
	if info.Size != 5 {
		t.Errorf("got size %d, want 5", info.Size)
	}
}

func TestStatBrokenSymlinkFallsBackEvenWhenFollowing(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "broken.txt")
	if err := os.Symlink(filepath.Join(dir, "missing.txt"), link); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fs, err := New(dir, WithFollowSymlinks(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer fs.Close()

	info, err := fs.Stat(context.Background(), "broken.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Kind != vfs.KindSymlink {
		t.Errorf("got kind %v, want KindSymlink for a broken link", info.Kind)
	}
}

func TestReadDirFollowsSymlinksWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	if err := os.WriteFile(target, []byte("xy"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, "link.txt")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	fs, err := New(dir, WithFollowSymlinks(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer fs.Close()

	infos, err := fs.ReadDir(context.Background(), "")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var link *vfs.Info
	for _, info := range infos {
		if info.Name == "link.txt" {
			link = info
		}
	}
	if link == nil {
		t.Fatal("expected link.txt in directory listing")
	}
	if link.Kind != vfs.KindFile {
		t.Errorf("got kind %v, want KindFile", link.Kind)
	}
}
