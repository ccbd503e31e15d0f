package diffcore

import "time"

// Kind identifies the type of filesystem object a FileEntry represents.
type Kind uint8

const (
	// KindFile indicates a regular file.
	KindFile Kind = iota
	// KindDirectory indicates a directory.
	KindDirectory
	// KindSymlink indicates a symbolic link. Backends do not follow
	// symlinks when populating a FileEntry's children.
	KindSymlink
)

// String returns a human-readable name for the entry kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FileEntry is the per-path record produced by a scan: the metadata a VFS
// backend reported for a path, plus (for files) the digest computed by the
// hash cache once the comparison engine requests it. A FileEntry with a
// non-nil Err represents a path that could not be fully probed; its other
// fields should not be relied upon.
type FileEntry struct {
	// Path is the entry's path relative to the scan root, using forward
	// slashes regardless of platform. The root itself is represented by
	// the empty string.
	Path string
	// Kind is the type of filesystem object.
	Kind Kind
	// Size is the entry's size in bytes. It is meaningful only for
	// KindFile entries.
	Size uint64
	// ModTime is the entry's last modification time, as reported by the
	// backend. Backends that cannot report a modification time leave this
	// at its zero value.
	ModTime time.Time
	// Mode holds the portable permission bits the backend observed, or 0
	// if the backend does not expose permissions (e.g. most archive and
	// object-store backends).
	Mode uint32
	// LinkTarget is the link target for KindSymlink entries.
	LinkTarget string
	// Digest is the content digest for KindFile entries, computed lazily
	// by the hash cache. It is nil until the comparison engine requests
	// content comparison for this entry.
	Digest *Digest
	// Err records a backend error encountered while probing this entry.
	// When non-nil, Kind/Size/ModTime/Mode/Digest should be ignored.
	Err *Error
	// Children holds the immediate children of a KindDirectory entry,
	// sorted by Path in depth-first traversal order. It is nil for
	// non-directory entries.
	Children []*FileEntry
}

// Name returns the entry's base name, or the empty string for the scan
// root.
func (e *FileEntry) Name() string {
	return PathBase(e.Path)
}

// Walk invokes visit for e and, recursively, every descendant, in
// depth-first order. If visit returns false, Walk stops descending into
// that entry's children but continues with its siblings.
func (e *FileEntry) Walk(visit func(*FileEntry) bool) {
	if e == nil {
		return
	}
	if !visit(e) {
		return
	}
	for _, child := range e.Children {
		child.Walk(visit)
	}
}

// Lookup returns the descendant of e at the given root-relative path, or
// nil if no such descendant exists. An empty path returns e itself.
func (e *FileEntry) Lookup(path string) *FileEntry {
	if e == nil || path == "" {
		return e
	}
	current := e
outer:
	for _, component := range splitPath(path) {
		for _, child := range current.Children {
			if PathBase(child.Path) == component {
				current = child
				continue outer
			}
		}
		return nil
	}
	return current
}

// splitPath splits a root-relative path into its components.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var components []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			components = append(components, path[start:i])
			start = i + 1
		}
	}
	components = append(components, path[start:])
	return components
}
