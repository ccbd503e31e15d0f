// Package config defines the human-readable, YAML-loadable configuration
// that ties together a scan and a comparison run: ignore patterns,
// symlink handling, the streaming threshold, worker counts, and the hash
// cache's on-disk location.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dustin/go-humanize"
)

// ByteSize is a uint64 value that unmarshals from either a human-friendly
// string ("100 MB") or a bare numeric representation, so a YAML document
// can express the streaming threshold however is most readable.
type ByteSize uint64

// UnmarshalYAML implements yaml.Unmarshaler, accepting both a scalar
// string ("100MiB") and a bare integer node.
func (s *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := humanize.ParseBytes(asString)
		if err != nil {
			return fmt.Errorf("invalid byte size %q: %w", asString, err)
		}
		*s = ByteSize(parsed)
		return nil
	}

	var asNumber uint64
	if err := value.Decode(&asNumber); err != nil {
		return fmt.Errorf("invalid byte size: %w", err)
	}
	*s = ByteSize(asNumber)
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting a human-readable string.
func (s ByteSize) MarshalYAML() (interface{}, error) {
	return humanize.Bytes(uint64(s)), nil
}

// ParseByteSize parses a human-friendly byte size string (e.g. "100MB",
// "50 MiB"), for use by collaborators (such as the CLI) that accept a
// byte size as a flag value rather than through a YAML document.
func ParseByteSize(text string) (ByteSize, error) {
	parsed, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", text, err)
	}
	return ByteSize(parsed), nil
}

// Config is the top-level configuration for a corediff run, combining
// scan configuration and comparator configuration into a single document
// a caller can load once and pass to both scan and compare.
type Config struct {
	// Ignore lists gitignore-syntax patterns applied to every path
	// beneath both scan roots.
	Ignore []string `yaml:"ignore"`
	// LoadGitignore causes discovered ".gitignore" files on the left root
	// to be honored in addition to Ignore.
	LoadGitignore bool `yaml:"loadGitignore"`
	// FollowSymlinks causes both VFS roots to resolve symlinks to their
	// targets instead of reporting them as symlink entries.
	FollowSymlinks bool `yaml:"followSymlinks"`
	// MaxDepth bounds scan descent; 0 means unlimited.
	MaxDepth int `yaml:"maxDepth"`
	// VerifyHashes forces hash confirmation even when size and truncated
	// mtime already agree, eliminating DiffStatusUnchecked results.
	VerifyHashes bool `yaml:"verifyHashes"`
	// StreamThreshold is the file size at or above which equality is
	// decided by streaming instead of full-file hashing.
	StreamThreshold ByteSize `yaml:"streamThreshold"`
	// Workers bounds concurrency for the scanner, the hasher, and the
	// comparator; 0 selects each component's own CPU-count default.
	Workers int `yaml:"workers"`
	// CachePath is the on-disk location of the persistent hash cache. An
	// empty value disables cache persistence (an empty in-memory cache is
	// used for the run and discarded afterward).
	CachePath string `yaml:"cachePath"`
}

// Default returns a Config with symlinks not followed, a 100 MiB
// streaming threshold, and no cache persistence.
func Default() Config {
	return Config{
		StreamThreshold: ByteSize(100 * 1024 * 1024),
	}
}

// Load reads and parses a YAML configuration file at path, starting from
// Default() so that fields the document omits keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read configuration file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unable to parse configuration file: %w", err)
	}
	return cfg, nil
}
