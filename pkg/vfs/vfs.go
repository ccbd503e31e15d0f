// Package vfs defines the virtual filesystem abstraction that the scanner
// and comparison engine use to address local directories, archive files,
// and remote stores uniformly.
package vfs

import (
	"context"
	"io"
	"time"
)

// Capability is a single bit in a backend's capability bitset.
type Capability uint32

const (
	// CapRead indicates that a backend supports reading file content.
	CapRead Capability = 1 << iota
	// CapWrite indicates that a backend supports creating and overwriting
	// files.
	CapWrite
	// CapRename indicates that a backend supports renaming entries
	// in-place.
	CapRename
	// CapSetModTime indicates that a backend supports setting a file's
	// modification time independently of writing its content.
	CapSetModTime
	// CapCopy indicates that a backend can perform a server-side copy
	// without streaming content through the caller.
	CapCopy
)

// Has reports whether the bitset includes capability c.
func (caps Capability) Has(c Capability) bool {
	return caps&c != 0
}

// Kind identifies the type of object an Info describes.
type Kind uint8

const (
	// KindFile indicates a regular file.
	KindFile Kind = iota
	// KindDirectory indicates a directory.
	KindDirectory
	// KindSymlink indicates a symbolic link.
	KindSymlink
)

// Info is the metadata a backend reports for a single path. It mirrors
// diffcore.FileEntry's metadata fields but carries no children or digest,
// since populating those is the scanner's and hash cache's job,
// respectively.
type Info struct {
	// Name is the entry's base name.
	Name string
	// Kind is the type of filesystem object.
	Kind Kind
	// Size is the entry's size in bytes (meaningful only for KindFile).
	Size uint64
	// ModTime is the entry's last modification time. Backends that cannot
	// report one leave this at its zero value.
	ModTime time.Time
	// Mode holds portable permission bits, or 0 if the backend does not
	// expose permissions.
	Mode uint32
	// LinkTarget is the symlink target, for KindSymlink entries.
	LinkTarget string
}

// FS is the interface implemented by every virtual filesystem backend:
// local directories, archive files, and remote stores.
type FS interface {
	// Capabilities returns the bitset of operations this backend
	// supports. Callers should consult this before invoking write-side
	// methods rather than relying on them to fail gracefully.
	Capabilities() Capability

	// InstanceID returns a string that uniquely identifies this mounted
	// root for the purposes of hash cache namespacing. Two FS instances
	// mounted against the same underlying root should return the same
	// instance ID across process restarts; two FS instances mounted
	// against different roots should (with overwhelming probability)
	// return different instance IDs.
	InstanceID() string

	// Stat returns metadata for the entry at path, which is relative to
	// the backend's root and uses forward slashes. The root itself is
	// addressed with the empty string.
	Stat(ctx context.Context, path string) (*Info, error)

	// ReadDir returns metadata for the immediate children of the
	// directory at path. The ordering of the result is unspecified; the
	// scanner is responsible for sorting.
	ReadDir(ctx context.Context, path string) ([]*Info, error)

	// Open returns a reader positioned at the start of the file at path.
	// The caller is responsible for closing the returned reader.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create opens path for writing, truncating or creating it as
	// necessary, and returns a writer. Only valid if Capabilities
	// includes CapWrite.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Rename moves the entry at oldPath to newPath. Only valid if
	// Capabilities includes CapRename.
	Rename(ctx context.Context, oldPath, newPath string) error

	// SetModTime sets the modification time of the entry at path. Only
	// valid if Capabilities includes CapSetModTime.
	SetModTime(ctx context.Context, path string, modTime time.Time) error

	// Close releases any resources held by the backend (open archive
	// handles, network connections, and so on).
	Close() error
}
