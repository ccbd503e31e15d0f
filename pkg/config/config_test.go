package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultStreamThreshold(t *testing.T) {
	cfg := Default()
	if cfg.StreamThreshold != ByteSize(100*1024*1024) {
		t.Errorf("got %d, want 100 MiB", cfg.StreamThreshold)
	}
}

func TestLoadParsesHumanByteSizeAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corediff.yml")
	content := `
ignore:
  - "*.log"
  - "build/"
followSymlinks: true
verifyHashes: true
streamThreshold: "50 MB"
workers: 4
cachePath: /tmp/corediff.cache
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Ignore) != 2 || cfg.Ignore[0] != "*.log" || cfg.Ignore[1] != "build/" {
		t.Errorf("got ignore %v, want [*.log build/]", cfg.Ignore)
	}
	if !cfg.FollowSymlinks {
		t.Error("expected FollowSymlinks to be true")
	}
	if !cfg.VerifyHashes {
		t.Error("expected VerifyHashes to be true")
	}
	if cfg.StreamThreshold != ByteSize(50_000_000) {
		t.Errorf("got stream threshold %d, want 50,000,000", cfg.StreamThreshold)
	}
	if cfg.Workers != 4 {
		t.Errorf("got workers %d, want 4", cfg.Workers)
	}
	if cfg.CachePath != "/tmp/corediff.cache" {
		t.Errorf("got cache path %q", cfg.CachePath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error loading missing configuration file")
	}
}
