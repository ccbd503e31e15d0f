// Package archive implements a read-only vfs.FS over zip and tar(.gz)
// archive files, grounded on the standard library's archive/zip and
// archive/tar packages rather than a third-party container reader (see
// DESIGN.md for why that matches the ecosystem's own practice).
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/corediff/corediff/pkg/diffcore"
	"github.com/corediff/corediff/pkg/vfs"
)

// node is a single entry in the archive's precomputed directory tree.
type node struct {
	info     *vfs.Info
	content  []byte // populated for KindFile entries
	children map[string]*node
}

// FS is a read-only vfs.FS backed by an in-memory index of a zip or tar
// archive's contents, built once at construction time.
type FS struct {
	path       string
	instanceID string
	root       *node
}

// Open opens the archive at path and indexes its contents. The format is
// selected by file extension: .zip, .tar, .tar.gz, and .tgz are supported.
func Open(path string) (*FS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindNotFound, "", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindIO, "", err)
	}

	root := newDirNode("")
	var fs *FS

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		zr, err := zip.NewReader(f, stat.Size())
		if err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindInvalidArchive, "", err)
		}
		for _, zf := range zr.File {
			if err := indexZipEntry(root, zf); err != nil {
				return nil, err
			}
		}
		fs = &FS{path: path, root: root}
	case strings.HasSuffix(lower, ".tar"), strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, diffcore.NewError(diffcore.ErrorKindIO, "", err)
		}
		reader := io.Reader(bytes.NewReader(raw))
		if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
			gz, err := gzip.NewReader(bytes.NewReader(raw))
			if err != nil {
				return nil, diffcore.NewError(diffcore.ErrorKindInvalidArchive, "", err)
			}
			defer gz.Close()
			reader = gz
		}
		if err := indexTar(root, reader); err != nil {
			return nil, err
		}
		fs = &FS{path: path, root: root}
	default:
		return nil, diffcore.NewError(diffcore.ErrorKindUnsupported, "", fmt.Errorf("unrecognized archive extension: %s", path))
	}

	fs.instanceID = "archive:" + path + fmt.Sprintf(":%d:%d", stat.Size(), stat.ModTime().Unix())
	return fs, nil
}

func newDirNode(name string) *node {
	return &node{
		info:     &vfs.Info{Name: name, Kind: vfs.KindDirectory},
		children: make(map[string]*node),
	}
}

// ensureDir walks (creating as necessary) the directory path leading to
// name, returning the parent node under which name should be inserted.
func ensureDir(root *node, dirPath string) *node {
	if dirPath == "" || dirPath == "." {
		return root
	}
	current := root
	for _, component := range strings.Split(dirPath, "/") {
		if component == "" {
			continue
		}
		child, ok := current.children[component]
		if !ok {
			child = newDirNode(component)
			current.children[component] = child
		}
		current = child
	}
	return current
}

func indexZipEntry(root *node, zf *zip.File) error {
	cleanName := strings.TrimSuffix(zf.Name, "/")
	if cleanName == "" {
		return nil
	}
	dir, base := path.Split(cleanName)
	parent := ensureDir(root, strings.TrimSuffix(dir, "/"))

	if strings.HasSuffix(zf.Name, "/") {
		if _, ok := parent.children[base]; !ok {
			parent.children[base] = newDirNode(base)
		}
		return nil
	}

	rc, err := zf.Open()
	if err != nil {
		return diffcore.NewError(diffcore.ErrorKindInvalidArchive, cleanName, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return diffcore.NewError(diffcore.ErrorKindInvalidArchive, cleanName, err)
	}

	parent.children[base] = &node{
		info: &vfs.Info{
			Name:    base,
			Kind:    vfs.KindFile,
			Size:    zf.UncompressedSize64,
			ModTime: zf.Modified,
			Mode:    uint32(zf.Mode().Perm()),
		},
		content: content,
	}
	return nil
}

func indexTar(root *node, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return diffcore.NewError(diffcore.ErrorKindInvalidArchive, "", err)
		}

		cleanName := strings.Trim(hdr.Name, "/")
		if cleanName == "" {
			continue
		}
		dir, base := path.Split(cleanName)
		parent := ensureDir(root, strings.TrimSuffix(dir, "/"))

		switch hdr.Typeflag {
		case tar.TypeDir:
			child := ensureDir(parent, base)
			parent.children[base] = child
			parent.children[base].info.Name = base
		case tar.TypeSymlink, tar.TypeLink:
			parent.children[base] = &node{
				info: &vfs.Info{
					Name:       base,
					Kind:       vfs.KindSymlink,
					ModTime:    hdr.ModTime,
					LinkTarget: hdr.Linkname,
				},
			}
		default:
			content := make([]byte, hdr.Size)
			if _, err := io.ReadFull(tr, content); err != nil {
				return diffcore.NewError(diffcore.ErrorKindInvalidArchive, cleanName, err)
			}
			parent.children[base] = &node{
				info: &vfs.Info{
					Name:    base,
					Kind:    vfs.KindFile,
					Size:    uint64(hdr.Size),
					ModTime: hdr.ModTime,
					Mode:    uint32(hdr.Mode) & 0777,
				},
				content: content,
			}
		}
	}
	return nil
}

// lookup locates the node at the given root-relative path.
func (f *FS) lookup(p string) (*node, error) {
	if p == "" {
		return f.root, nil
	}
	current := f.root
	for _, component := range strings.Split(p, "/") {
		child, ok := current.children[component]
		if !ok {
			return nil, diffcore.NewError(diffcore.ErrorKindNotFound, p, nil)
		}
		current = child
	}
	return current, nil
}

// Capabilities implements vfs.FS.Capabilities. Archive backends are
// read-only.
func (f *FS) Capabilities() vfs.Capability {
	return vfs.CapRead
}

// InstanceID implements vfs.FS.InstanceID.
func (f *FS) InstanceID() string {
	return f.instanceID
}

// Stat implements vfs.FS.Stat.
func (f *FS) Stat(ctx context.Context, p string) (*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	info := *n.info
	if p == "" {
		info.Name = ""
	}
	return &info, nil
}

// ReadDir implements vfs.FS.ReadDir.
func (f *FS) ReadDir(ctx context.Context, p string) ([]*vfs.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.info.Kind != vfs.KindDirectory {
		return nil, diffcore.NewError(diffcore.ErrorKindIsADirectory, p, fmt.Errorf("%s is not a directory", p))
	}
	result := make([]*vfs.Info, 0, len(n.children))
	for _, child := range n.children {
		info := *child.info
		result = append(result, &info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Open implements vfs.FS.Open.
func (f *FS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, diffcore.NewError(diffcore.ErrorKindCancelled, p, err)
	}
	n, err := f.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.info.Kind != vfs.KindFile {
		return nil, diffcore.NewError(diffcore.ErrorKindIsADirectory, p, fmt.Errorf("%s is not a file", p))
	}
	return io.NopCloser(bytes.NewReader(n.content)), nil
}

// Create implements vfs.FS.Create. Archive backends are read-only.
func (f *FS) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return nil, diffcore.NewError(diffcore.ErrorKindUnsupported, p, fmt.Errorf("archive backend is read-only"))
}

// Rename implements vfs.FS.Rename. Archive backends are read-only.
func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	return diffcore.NewError(diffcore.ErrorKindUnsupported, oldPath, fmt.Errorf("archive backend is read-only"))
}

// SetModTime implements vfs.FS.SetModTime. Archive backends are read-only.
func (f *FS) SetModTime(ctx context.Context, p string, modTime time.Time) error {
	return diffcore.NewError(diffcore.ErrorKindUnsupported, p, fmt.Errorf("archive backend is read-only"))
}

// Close implements vfs.FS.Close. The archive index is held entirely in
// memory, so there is nothing to release.
func (f *FS) Close() error {
	return nil
}
