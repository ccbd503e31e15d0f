// Package local implements a vfs.FS backed by the local operating system
// filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/vfs"
)

// FS is a vfs.FS backed by a directory on the local filesystem.
type FS struct {
	root           string
	instanceID     string
	followSymlinks bool
}

// Option configures an FS at construction time.
type Option func(*FS)

// WithFollowSymlinks causes the backend to resolve symlinks via the
// target they point to (os.Stat semantics) rather than reporting them as
// KindSymlink entries (os.Lstat semantics). Symlinks are only followed if
// the caller opts in, and the resolved target is what subsequent
// metadata and reads observe.
func WithFollowSymlinks(follow bool) Option {
	return func(f *FS) { f.followSymlinks = follow }
}

// New constructs a local filesystem backend rooted at root. The root must
// exist and be a directory.
func New(root string, opts ...Option) (*FS, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve root path: %w", err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return nil, translateErr(err, "")
	}
	if !info.IsDir() {
		return nil, diffcore.NewError(diffcore.ErrorKindIsADirectory, "", fmt.Errorf("%s is not a directory", absolute))
	}

	// The instance ID is a deterministic SHA1 of the resolved root path
	// (via uuid.NewSHA1, not a random salt), so two FS instances mounted
	// against the same root path share a cache namespace even across
	// process restarts, while distinct roots remain separated even if a
	// path happens to collide with another backend's instance ID.
	f := &FS{
		root:       absolute,
		instanceID: "local:" + absolute + ":" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(absolute)).String(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Capabilities implements vfs.FS.Capabilities.
func (f *FS) Capabilities() vfs.Capability {
	return vfs.CapRead | vfs.CapWrite | vfs.CapRename | vfs.CapSetModTime
}

// InstanceID implements vfs.FS.InstanceID.
func (f *FS) InstanceID() string {
	return f.instanceID
}

// resolve converts a root-relative, forward-slash path into an absolute
// native path beneath the root.
func (f *FS) resolve(path string) string {
	if path == "" {
		return f.root
	}
	return filepath.Join(f.root, filepath.FromSlash(path))
}

// translateErr maps a stdlib os error into a diffcore.Error carrying the
// appropriate kind, so the scanner and comparison engine never need to
// understand os-specific error values.
func translateErr(err error, path string) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return diffcore.NewError(diffcore.ErrorKindNotFound, path, err)
	case os.IsPermission(err):
		return diffcore.NewError(diffcore.ErrorKindPermissionDenied, path, err)
	default:
		return diffcore.NewError(diffcore.ErrorKindIO, path, err)
	}
}

// infoFromFileInfo converts an os.FileInfo (or fs.DirEntry.Info result)
// into a vfs.Info.
func infoFromFileInfo(name string, fi fs.FileInfo) *vfs.Info {
	kind := vfs.KindFile
	var linkTarget string
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		kind = vfs.KindSymlink
	case fi.IsDir():
		kind = vfs.KindDirectory
	}
	return &vfs.Info{
		Name:       name,
		Kind:       kind,
		Size:       uint64(fi.Size()),
		ModTime:    fi.ModTime(),
		Mode:       uint32(fi.Mode().Perm()),
		LinkTarget: linkTarget,
	}
}

// Stat implements vfs.FS.Stat.
func (f *FS) Stat(ctx context.Context, path string) (*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, path, err)
	}
	native := f.resolve(path)
	fi, err := os.Lstat(native)
	if err != nil {
		return nil, translateErr(err, path)
	}
	if f.followSymlinks && fi.Mode()&os.ModeSymlink != 0 {
		if resolved, err := os.Stat(native); err == nil {
			fi = resolved
		}
		// A broken symlink falls through with the Lstat result, which
		// is reported as a KindSymlink entry.
	}
	info := infoFromFileInfo(fi.Name(), fi)
	if info.Kind == vfs.KindSymlink {
		if target, err := os.Readlink(native); err == nil {
			info.LinkTarget = target
		}
	}
	if path == "" {
		info.Name = ""
	}
	return info, nil
}

// ReadDir implements vfs.FS.ReadDir.
func (f *FS) ReadDir(ctx context.Context, path string) ([]*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, path, err)
	}
	native := f.resolve(path)
	entries, err := os.ReadDir(native)
	if err != nil {
		return nil, translateErr(err, path)
	}
	result := make([]*vfs.Info, 0, len(entries))
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			// The entry vanished between ReadDir and Info, or is an
			// unreadable symlink target; report it as a per-entry error
			// rather than aborting the whole listing.
			result = append(result, &vfs.Info{Name: entry.Name()})
			continue
		}
		childNative := filepath.Join(native, entry.Name())
		if f.followSymlinks && fi.Mode()&os.ModeSymlink != 0 {
			if resolved, err := os.Stat(childNative); err == nil {
				fi = resolved
			}
		}
		childInfo := infoFromFileInfo(entry.Name(), fi)
		if childInfo.Kind == vfs.KindSymlink {
			if target, err := os.Readlink(childNative); err == nil {
				childInfo.LinkTarget = target
			}
		}
		result = append(result, childInfo)
	}
	return result, nil
}

// Open implements vfs.FS.Open.
func (f *FS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, path, err)
	}
	file, err := os.Open(f.resolve(path))
	if err != nil {
		return nil, translateErr(err, path)
	}
	return file, nil
}

// Create implements vfs.FS.Create.
func (f *FS) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, path, err)
	}
	native := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(native), 0755); err != nil {
		return nil, translateErr(err, path)
	}
	file, err := os.Create(native)
	if err != nil {
		return nil, translateErr(err, path)
	}
	return file, nil
}

// Rename implements vfs.FS.Rename.
func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return diffcore.NewError(diffcore.ErrorKindCancelled, oldPath, err)
	}
	if err := os.Rename(f.resolve(oldPath), f.resolve(newPath)); err != nil {
		return translateErr(err, oldPath)
	}
	return nil
}

// SetModTime implements vfs.FS.SetModTime.
func (f *FS) SetModTime(ctx context.Context, path string, modTime time.Time) error {
	if err := ctx.Err(); err != nil {
		return diffcore.NewError(diffcore.ErrorKindCancelled, path, err)
	}
	if err := os.Chtimes(f.resolve(path), modTime, modTime); err != nil {
		return translateErr(err, path)
	}
	return nil
}

// Close implements vfs.FS.Close. The local backend holds no resources that
// require explicit release.
func (f *FS) Close() error {
	return nil
}
